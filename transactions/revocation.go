package transactions

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// revocationSighash is the sighash type every Cancel/Emergency/UnvaultEmergency
// transaction records on its primary input: signers co-sign once and a feebump input
// can be appended later without invalidating the existing signatures.
const revocationSighash = txscript.SigHashAll | txscript.SigHashAnyOneCanPay

// feebumpMaxSatWeight is the worst-case witness weight of satisfying a single-key
// P2WPKH input: a 1-byte item count, a ~72-byte DER signature plus its 1-byte length
// prefix and sighash-type byte, and a 33-byte compressed pubkey plus its length prefix.
const feebumpMaxSatWeight = uint64(1 + 1 + 73 + 1 + 33)

// revocationPrimary describes the single P2WSH input a Cancel/Emergency/
// UnvaultEmergency transaction spends (an Unvault or Deposit output).
type revocationPrimary struct {
	txIn          *wire.TxIn
	witnessUtxo   *wire.TxOut
	witnessScript []byte
	bip32         []*psbt.Bip32Derivation
	maxSatWeight  uint32
}

// feebumpInput describes the optional external P2WPKH input a revocation transaction
// may pull in to afford a higher feerate than its own fixed one.
type feebumpInput struct {
	txIn        *wire.TxIn
	witnessUtxo *wire.TxOut
	bip32       []*psbt.Bip32Derivation
}

// buildRevocationPsbt assembles the common shape every Cancel/Emergency/
// UnvaultEmergency transaction shares: one AllPlusAnyoneCanPay primary input, an
// optional SigHashAll P2WPKH feebump input, and a single output whose value is the
// total input value minus fees computed at the fixed feerate.
func buildRevocationPsbt(primary revocationPrimary, feebump *feebumpInput, feerate uint64, outScriptPubKey []byte, outBip32 []*psbt.Bip32Derivation, lockTime uint32) (*psbt.Packet, error) {
	tx := wire.NewMsgTx(TxVersion)
	tx.LockTime = lockTime
	tx.TxIn = []*wire.TxIn{primary.txIn}
	totalInputValue := uint64(primary.witnessUtxo.Value)
	totalMaxSatWeight := uint64(primary.maxSatWeight)
	if feebump != nil {
		tx.TxIn = append(tx.TxIn, feebump.txIn)
		totalInputValue += uint64(feebump.witnessUtxo.Value)
		totalMaxSatWeight += feebumpMaxSatWeight
	}
	// Dummy max-value output so its witness-stripped size is already accounted for;
	// the fixed 8-byte amount field means the placeholder value doesn't affect weight.
	tx.TxOut = []*wire.TxOut{wire.NewTxOut(int64(^uint64(0)>>1), outScriptPubKey)}

	totalWeight := uint64(txWeight(tx)) + totalMaxSatWeight
	fees := feerate * totalWeight
	if fees > InsaneFees {
		return nil, ErrInsaneFees
	}
	if fees+DustLimit > totalInputValue {
		return nil, ErrDust
	}
	outValue := totalInputValue - fees
	if outValue > uint64(btcutil.MaxSatoshi) {
		return nil, ErrInsaneAmounts
	}
	tx.TxOut[0].Value = int64(outValue)

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionCreation, err)
	}

	packet.Inputs[0].WitnessScript = primary.witnessScript
	packet.Inputs[0].Bip32Derivation = primary.bip32
	packet.Inputs[0].SighashType = revocationSighash
	packet.Inputs[0].WitnessUtxo = primary.witnessUtxo
	if feebump != nil {
		packet.Inputs[1].Bip32Derivation = feebump.bip32
		packet.Inputs[1].SighashType = txscript.SigHashAll
		packet.Inputs[1].WitnessUtxo = feebump.witnessUtxo
	}
	packet.Outputs[0].Bip32Derivation = outBip32

	return packet, nil
}

// checkRevocationShape validates a parsed Cancel/Emergency/UnvaultEmergency PSBT
// against the structural invariants every revocation transaction shares: exactly one
// output with bip32 derivations, 1 or 2 inputs, the primary input's per-input
// invariants plus its fixed AllPlusAnyoneCanPay sighash, and (when present) a feebump
// input that is P2WPKH at SigHashAll.
func checkRevocationShape(packet *psbt.Packet) error {
	return checkRevocationShapeImpl(packet, true)
}

// checkEmergencyOutputShape is checkRevocationShape without the output-bip32-derivation
// requirement: an Emergency/UnvaultEmergency output pays an external address this
// library holds no keys for, so it never carries derivation metadata.
func checkEmergencyOutputShape(packet *psbt.Packet) error {
	return checkRevocationShapeImpl(packet, false)
}

func checkRevocationShapeImpl(packet *psbt.Packet, requireOutputBip32 bool) error {
	if len(packet.UnsignedTx.TxOut) != 1 {
		return fmt.Errorf("%w: revocation transaction must have exactly 1 output, got %d", ErrPsbtValidation, len(packet.UnsignedTx.TxOut))
	}
	if requireOutputBip32 && len(packet.Outputs[0].Bip32Derivation) == 0 {
		return fmt.Errorf("%w: revocation transaction's output is missing bip32 derivations", ErrPsbtValidation)
	}
	numIn := len(packet.UnsignedTx.TxIn)
	if numIn != 1 && numIn != 2 {
		return fmt.Errorf("%w: revocation transaction must have 1 or 2 inputs, got %d", ErrPsbtValidation, numIn)
	}

	primary := &packet.Inputs[0]
	if primary.FinalScriptWitness == nil {
		if primary.SighashType != revocationSighash {
			return fmt.Errorf("%w: revocation transaction's primary input must be signed with SIGHASH_ALL|ANYONECANPAY", ErrPsbtValidation)
		}
		if err := checkP2WSHInputShape(primary); err != nil {
			return err
		}
	}

	if numIn == 2 {
		feebump := &packet.Inputs[1]
		if feebump.FinalScriptWitness == nil {
			if feebump.SighashType != txscript.SigHashAll {
				return fmt.Errorf("%w: revocation transaction's feebump input must be signed with SIGHASH_ALL", ErrPsbtValidation)
			}
			if feebump.WitnessUtxo == nil {
				return fmt.Errorf("%w: feebump input is missing its witness_utxo", ErrPsbtValidation)
			}
			if !txscript.IsPayToWitnessPubKeyHash(feebump.WitnessUtxo.PkScript) {
				return fmt.Errorf("%w: feebump input must be P2WPKH", ErrPsbtValidation)
			}
			if len(feebump.Bip32Derivation) == 0 {
				return fmt.Errorf("%w: feebump input is missing bip32 derivations", ErrPsbtValidation)
			}
		}
	}
	return nil
}

func checkP2WSHInputShape(in *psbt.PInput) error {
	if len(in.Bip32Derivation) == 0 {
		return fmt.Errorf("%w: input is missing bip32 derivations", ErrPsbtValidation)
	}
	if in.WitnessScript == nil {
		return fmt.Errorf("%w: input is missing its witness script", ErrPsbtValidation)
	}
	if in.WitnessUtxo == nil {
		return fmt.Errorf("%w: input is missing its witness_utxo", ErrPsbtValidation)
	}
	spk, err := p2wshScript(in.WitnessScript)
	if err != nil {
		return err
	}
	if !bytesEqual(spk, in.WitnessUtxo.PkScript) {
		return fmt.Errorf("%w: input's witness script does not match its witness_utxo scriptPubKey", ErrPsbtValidation)
	}
	return nil
}
