package transactions

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// SpendTransaction spends one or more Unvault outputs (the manager path, once the CSV
// timelock has matured), paying one or more external destinations plus a CPFP output
// and an optional change-to-deposit output.
type SpendTransaction struct {
	base
}

// NewSpendTransaction builds a Spend transaction. insaneFeeCheck gates the
// InsaneFees check, since a caller deliberately omitting a change output may legitimately
// want to pay the entire leftover amount as fees.
func NewSpendTransaction(unvaultIns []*txio.UnvaultTxIn, destinations []*txio.ExternalTxOut, change *txio.DepositTxOut, cpfpDescriptor *scripts.DerivedCpfpDescriptor, lockTime uint32, insaneFeeCheck bool) (*SpendTransaction, error) {
	if err := requireUniqueOutpoints(unvaultIns); err != nil {
		return nil, err
	}

	cpfpOut := spendCpfpTxout(unvaultIns, destinations, change, cpfpDescriptor, lockTime)

	var satWeight uint64
	for _, in := range unvaultIns {
		satWeight += uint64(in.TxOut.MaxSatWeight())
	}

	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = lockTime
	tx.TxIn = make([]*wire.TxIn, len(unvaultIns))
	for i, in := range unvaultIns {
		tx.TxIn[i] = in.UnsignedTxIn()
	}

	tx.TxOut = append(tx.TxOut, cpfpOut.TxOut)
	outDerivations := make([][]*psbt.Bip32Derivation, 0, len(destinations)+2)
	outDerivations = append(outDerivations, cpfpOut.Bip32Derivation())

	var valueOut uint64
	for _, dest := range destinations {
		if uint64(dest.TxOut.Value) < DustLimit {
			return nil, ErrDust
		}
		valueOut += uint64(dest.TxOut.Value)
		tx.TxOut = append(tx.TxOut, dest.TxOut)
		outDerivations = append(outDerivations, nil)
	}
	if change != nil {
		if uint64(change.TxOut.Value) < DustLimit {
			return nil, ErrDust
		}
		valueOut += uint64(change.TxOut.Value)
		tx.TxOut = append(tx.TxOut, change.TxOut)
		outDerivations = append(outDerivations, change.Bip32Derivation())
	}

	totalWeight := satWeight + uint64(txWeight(tx))
	if totalWeight > uint64(MaxStandardTxWeight) {
		return nil, fmt.Errorf("%w: spend transaction exceeds the standardness weight ceiling", ErrTransactionCreation)
	}
	if valueOut > uint64(btcutil.MaxSatoshi) {
		return nil, ErrInsaneAmounts
	}

	var valueIn uint64
	for _, in := range unvaultIns {
		valueIn += uint64(in.TxOut.TxOut.Value)
	}
	if valueOut > valueIn {
		return nil, fmt.Errorf("%w: spend transaction outputs exceed its inputs", ErrTransactionCreation)
	}
	fees := valueIn - valueOut
	if insaneFeeCheck && fees > InsaneFees {
		return nil, ErrInsaneFees
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionCreation, err)
	}
	for i, in := range unvaultIns {
		packet.Inputs[i].WitnessScript = in.TxOut.WitnessScript()
		packet.Inputs[i].Bip32Derivation = in.TxOut.Bip32Derivation()
		packet.Inputs[i].SighashType = txscript.SigHashAll
		packet.Inputs[i].WitnessUtxo = in.TxOut.TxOut
	}
	for i, d := range outDerivations {
		packet.Outputs[i].Bip32Derivation = d
	}

	return &SpendTransaction{base: newBase(packet)}, nil
}

func requireUniqueOutpoints(ins []*txio.UnvaultTxIn) error {
	seen := make(map[wire.OutPoint]struct{}, len(ins))
	for _, in := range ins {
		if _, ok := seen[in.Outpoint]; ok {
			return fmt.Errorf("%w: duplicate input outpoint %s", ErrTransactionCreation, in.Outpoint)
		}
		seen[in.Outpoint] = struct{}{}
	}
	return nil
}

// spendCpfpTxout computes this Spend transaction's CPFP output value: 16x the total
// package weight (witness-stripped transaction weight plus every input's worst-case
// satisfaction weight), per the fixed policy this port's fee model uses throughout.
func spendCpfpTxout(unvaultIns []*txio.UnvaultTxIn, destinations []*txio.ExternalTxOut, change *txio.DepositTxOut, cpfpDescriptor *scripts.DerivedCpfpDescriptor, lockTime uint32) *txio.CpfpTxOut {
	dummyCpfp := txio.NewCpfpTxOut(int64(^uint64(0)>>1), cpfpDescriptor)

	dummyTx := wire.NewMsgTx(TxVersion)
	dummyTx.LockTime = lockTime
	for _, in := range unvaultIns {
		dummyTx.TxIn = append(dummyTx.TxIn, in.UnsignedTxIn())
	}
	dummyTx.TxOut = append(dummyTx.TxOut, dummyCpfp.TxOut)
	for _, dest := range destinations {
		dummyTx.TxOut = append(dummyTx.TxOut, dest.TxOut)
	}
	if change != nil {
		dummyTx.TxOut = append(dummyTx.TxOut, change.TxOut)
	}

	var satWeight uint64
	for _, in := range unvaultIns {
		satWeight += uint64(in.TxOut.MaxSatWeight())
	}
	totalWeight := satWeight + uint64(txWeight(dummyTx))
	cpfpValue := 16 * totalWeight
	return txio.NewCpfpTxOut(int64(cpfpValue), cpfpDescriptor)
}

// FromRawSpendPSBT parses and sanity-checks a serialized Spend PSBT: at least one
// P2WSH input (each non-final one SigHashAll with a matching witness script and
// non-empty bip32 derivations), 1 or 2 outputs carrying derivations (CPFP, plus
// optional change), and a post-max-satisfaction weight within the standardness ceiling.
func FromRawSpendPSBT(raw []byte) (*SpendTransaction, error) {
	packet, err := fromPsbtSerialized(raw)
	if err != nil {
		return nil, err
	}
	if len(packet.UnsignedTx.TxIn) == 0 {
		return nil, fmt.Errorf("%w: spend transaction must have at least 1 input", ErrPsbtValidation)
	}

	var maxSatWeight uint64
	for i := range packet.Inputs {
		in := &packet.Inputs[i]
		if in.WitnessUtxo == nil {
			return nil, fmt.Errorf("%w: input %d is missing its witness_utxo", ErrPsbtValidation, i)
		}
		if !txscript.IsPayToWitnessScriptHash(in.WitnessUtxo.PkScript) {
			return nil, fmt.Errorf("%w: input %d must be P2WSH", ErrPsbtValidation, i)
		}
		if in.FinalScriptWitness != nil {
			continue
		}
		if in.SighashType != txscript.SigHashAll {
			return nil, fmt.Errorf("%w: input %d must be signed with SIGHASH_ALL", ErrPsbtValidation, i)
		}
		if err := checkP2WSHInputShape(in); err != nil {
			return nil, err
		}
		maxSatWeight += uint64(maxSatWeightFromWitnessScript(in.WitnessScript))
	}

	derivationCount := 0
	for _, out := range packet.Outputs {
		if len(out.Bip32Derivation) > 0 {
			derivationCount++
			if derivationCount > 2 {
				return nil, fmt.Errorf("%w: spend transaction has too many outputs carrying derivations", ErrPsbtValidation)
			}
		}
	}
	if derivationCount < 1 {
		return nil, fmt.Errorf("%w: spend transaction must have at least one output carrying derivations (the CPFP output)", ErrPsbtValidation)
	}

	totalWeight := maxSatWeight + uint64(txWeight(packet.UnsignedTx))
	if totalWeight > uint64(MaxStandardTxWeight) {
		return nil, fmt.Errorf("%w: spend transaction exceeds the standardness weight ceiling once satisfied", ErrPsbtValidation)
	}

	return &SpendTransaction{base: newBase(packet)}, nil
}

// MaxWeight estimates this transaction's final weight once signed, summing each
// input's current (finalized) or worst-case (unfinalized) satisfaction weight.
func (s *SpendTransaction) MaxWeight() uint64 {
	weight := uint64(txWeight(s.Tx()))
	for i := range s.Psbt().Inputs {
		in := &s.Psbt().Inputs[i]
		if in.FinalScriptWitness != nil {
			weight += uint64(len(in.FinalScriptWitness))
		} else {
			weight += uint64(maxSatWeightFromWitnessScript(in.WitnessScript))
		}
	}
	return weight
}
