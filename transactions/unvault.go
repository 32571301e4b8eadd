package transactions

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// UnvaultTransaction spends a single deposit output and produces the Unvault output
// (guarded by or(stakeholders, and(managers, cosigners, older(csv)))) plus a CPFP
// output, at the fixed UnvaultTxFeerate.
type UnvaultTransaction struct {
	base
}

func createUnvaultPsbt(depositIn *txio.DepositTxIn, unvaultOut *txio.UnvaultTxOut, cpfpOut *txio.CpfpTxOut, lockTime uint32) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = lockTime
	tx.TxIn = []*wire.TxIn{depositIn.UnsignedTxIn()}
	tx.TxOut = []*wire.TxOut{unvaultOut.TxOut, cpfpOut.TxOut}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionCreation, err)
	}

	packet.Inputs[0].WitnessScript = depositIn.TxOut.WitnessScript()
	packet.Inputs[0].Bip32Derivation = depositIn.TxOut.Bip32Derivation()
	packet.Inputs[0].SighashType = txscript.SigHashAll
	packet.Inputs[0].WitnessUtxo = depositIn.TxOut.TxOut

	packet.Outputs[0].Bip32Derivation = unvaultOut.Bip32Derivation()
	packet.Outputs[1].Bip32Derivation = cpfpOut.Bip32Derivation()

	return packet, nil
}

// NewUnvaultTransaction builds the Unvault transaction spending depositIn. The Unvault
// output value is the deposit value minus the fixed feerate's fees and the fixed CPFP
// output value; both are computed here rather than taken as parameters, matching the
// fixed-fee design this transaction type always uses.
func NewUnvaultTransaction(depositIn *txio.DepositTxIn, unvaultDescriptor *scripts.DerivedUnvaultDescriptor, cpfpDescriptor *scripts.DerivedCpfpDescriptor, lockTime uint32) (*UnvaultTransaction, error) {
	dummyUnvaultOut := txio.NewUnvaultTxOut(int64(^uint64(0)>>1), unvaultDescriptor)
	dummyCpfpOut := txio.NewCpfpTxOut(int64(^uint64(0)>>1), cpfpDescriptor)
	dummyPacket, err := createUnvaultPsbt(depositIn, dummyUnvaultOut, dummyCpfpOut, lockTime)
	if err != nil {
		return nil, err
	}

	totalWeight := uint64(txWeight(dummyPacket.UnsignedTx)) + uint64(depositIn.TxOut.MaxSatWeight())
	fees := UnvaultTxFeerate * totalWeight
	if fees > InsaneFees {
		return nil, ErrInsaneFees
	}
	if totalWeight > uint64(MaxStandardTxWeight) {
		return nil, fmt.Errorf("%w: a single input and two outputs should never approach the standardness weight ceiling", ErrTransactionCreation)
	}

	depositValue := uint64(depositIn.TxOut.TxOut.Value)
	if fees+UnvaultCPFPValue+DustLimit > depositValue {
		return nil, ErrDust
	}
	unvaultValue := depositValue - fees - UnvaultCPFPValue
	if unvaultValue > uint64(btcutil.MaxSatoshi) {
		return nil, ErrInsaneAmounts
	}

	unvaultOut := txio.NewUnvaultTxOut(int64(unvaultValue), unvaultDescriptor)
	cpfpOut := txio.NewCpfpTxOut(int64(UnvaultCPFPValue), cpfpDescriptor)
	packet, err := createUnvaultPsbt(depositIn, unvaultOut, cpfpOut, lockTime)
	if err != nil {
		return nil, err
	}
	return &UnvaultTransaction{base: newBase(packet)}, nil
}

// FromRawUnvaultPSBT parses and sanity-checks a serialized Unvault PSBT: exactly one
// input, exactly two outputs (Unvault + CPFP), both outputs carrying bip32 derivations,
// and (for an unfinalized input) SigHashAll plus a witness script matching the
// witness_utxo's scriptPubKey.
func FromRawUnvaultPSBT(raw []byte) (*UnvaultTransaction, error) {
	packet, err := fromPsbtSerialized(raw)
	if err != nil {
		return nil, err
	}
	if err := checkUnvaultShape(packet); err != nil {
		return nil, err
	}
	return &UnvaultTransaction{base: newBase(packet)}, nil
}

func checkUnvaultShape(packet *psbt.Packet) error {
	if len(packet.UnsignedTx.TxOut) != 2 {
		return fmt.Errorf("%w: unvault transaction must have exactly 2 outputs, got %d", ErrPsbtValidation, len(packet.UnsignedTx.TxOut))
	}
	for i, out := range packet.Outputs {
		if len(out.Bip32Derivation) == 0 {
			return fmt.Errorf("%w: output %d is missing bip32 derivations", ErrPsbtValidation, i)
		}
	}
	if len(packet.UnsignedTx.TxIn) != 1 {
		return fmt.Errorf("%w: unvault transaction must have exactly 1 input, got %d", ErrPsbtValidation, len(packet.UnsignedTx.TxIn))
	}
	in := &packet.Inputs[0]
	if in.FinalScriptWitness == nil {
		if in.SighashType != txscript.SigHashAll {
			return fmt.Errorf("%w: unvault input must be signed with SIGHASH_ALL", ErrPsbtValidation)
		}
		if len(in.Bip32Derivation) == 0 {
			return fmt.Errorf("%w: unvault input is missing bip32 derivations", ErrPsbtValidation)
		}
		if in.WitnessScript == nil {
			return fmt.Errorf("%w: unvault input is missing its witness script", ErrPsbtValidation)
		}
		if in.WitnessUtxo == nil {
			return fmt.Errorf("%w: unvault input is missing its witness_utxo", ErrPsbtValidation)
		}
		spk, err := p2wshScript(in.WitnessScript)
		if err != nil {
			return err
		}
		if !bytesEqual(spk, in.WitnessUtxo.PkScript) {
			return fmt.Errorf("%w: unvault input's witness script does not match its witness_utxo scriptPubKey", ErrPsbtValidation)
		}
	}
	return nil
}

func p2wshScript(witnessScript []byte) ([]byte, error) {
	h := sha256.Sum256(witnessScript)
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_0)
	b.AddData(h[:])
	spk, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPsbtValidation, err)
	}
	return spk, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func txWeight(tx *wire.MsgTx) int64 {
	return int64(tx.SerializeSizeStripped())*3 + int64(tx.SerializeSize())
}

// unvaultTxIn locates this transaction's single Unvault output and wraps it as a
// spendable input at the given sequence.
func (u *UnvaultTransaction) unvaultTxIn(d *scripts.DerivedUnvaultDescriptor, sequence uint32) (*txio.UnvaultTxIn, error) {
	tx := u.Tx()
	var index = -1
	for i, out := range tx.TxOut {
		if bytesEqual(out.PkScript, d.ScriptPubKey) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: unvault transaction has no output matching this descriptor", ErrPsbtValidation)
	}
	txid := tx.TxHash()
	outpoint := wire.NewOutPoint(&txid, uint32(index))
	txOut := txio.NewUnvaultTxOut(tx.TxOut[index].Value, d)
	return &txio.UnvaultTxIn{Outpoint: *outpoint, TxOut: txOut, Sequence: sequence}, nil
}

// SpendUnvaultTxIn returns this transaction's Unvault output wrapped for the manager
// spend path: nSequence set to the descriptor's CSV value.
func (u *UnvaultTransaction) SpendUnvaultTxIn(d *scripts.DerivedUnvaultDescriptor) (*txio.UnvaultTxIn, error) {
	return u.unvaultTxIn(d, d.CSVValue())
}

// RevaultUnvaultTxIn returns this transaction's Unvault output wrapped for the
// revocation path (Cancel/Emergency/UnvaultEmergency): RBF-signaled, CSV-unconstrained.
func (u *UnvaultTransaction) RevaultUnvaultTxIn(d *scripts.DerivedUnvaultDescriptor) (*txio.UnvaultTxIn, error) {
	return u.unvaultTxIn(d, txio.RBFSequence)
}

// MaxWeight estimates this transaction's final weight once signed: the current
// (witness-stripped or final) weight plus the single input's worst-case satisfaction
// weight, used to size a CPFP bump.
func (u *UnvaultTransaction) MaxWeight() uint64 {
	in := &u.Psbt().Inputs[0]
	var inputWeight uint64
	if u.IsFinalized() {
		// FinalScriptWitness is the serialized witness stack; its byte length is
		// exactly the witness weight this input already spends.
		inputWeight = uint64(len(in.FinalScriptWitness))
	} else {
		inputWeight = uint64(maxSatWeightFromWitnessScript(in.WitnessScript))
	}
	return uint64(txWeight(u.Tx())) + inputWeight
}

// maxSatWeightFromWitnessScript estimates the worst-case satisfaction weight of a
// compiled script from its shape alone, used when a transaction's descriptor object
// isn't at hand (e.g. a PSBT parsed back from bytes). Dispatches the same way
// satisfyInput does: an or(stakeholders, and(managers,...)) script is sized by the
// larger of its manager branch (a slot per manager key plus a signature per cosigner)
// and its stakeholder branch, everything else by its single AND-chain.
func maxSatWeightFromWitnessScript(ws []byte) uint32 {
	disasm, err := txscript.DisasmString(ws)
	if err != nil {
		return uint32(len(ws)) + txio.MaxSatWeightMultisig(1, len(ws))
	}
	ops := strings.Fields(disasm)
	var numSigners int
	if len(ops) > 0 && ops[0] == "OP_IF" {
		// An all-managers-required clause chains straight into the cosigner keys; a
		// k-of-n clause ends in "<k> OP_EQUALVERIFY" before them.
		ifPubkeys, next := chainPubkeys(ops, 1)
		if next+1 < len(ops) && ops[next+1] == "OP_EQUALVERIFY" {
			cosigners, _ := chainPubkeys(ops, next+2)
			ifPubkeys = append(ifPubkeys, cosigners...)
		}
		numSigners = len(ifPubkeys)
		elseIdx := indexOf(ops, "OP_ELSE")
		if elseIdx >= 0 {
			pubkeys, _ := chainPubkeys(ops, elseIdx+1)
			if len(pubkeys) > numSigners {
				numSigners = len(pubkeys)
			}
		}
	} else {
		pubkeys, _ := chainPubkeys(ops, 0)
		numSigners = len(pubkeys)
	}
	if numSigners == 0 {
		numSigners = 1
	}
	return txio.MaxSatWeightMultisig(numSigners, len(ws))
}
