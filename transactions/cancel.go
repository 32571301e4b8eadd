package transactions

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// CancelTransaction spends an Unvault output back into a fresh deposit output at the
// fixed CancelTxFeerate: the revocation path stakeholders use to reclaim funds from a
// misbehaving or simply abandoned Unvault attempt.
type CancelTransaction struct {
	base
}

// NewCancelTransaction builds a Cancel transaction spending unvaultIn back into a new
// deposit output under depositDescriptor.
func NewCancelTransaction(unvaultIn *txio.UnvaultTxIn, feebump *feebumpInput, depositDescriptor *scripts.DerivedDepositDescriptor, lockTime uint32) (*CancelTransaction, error) {
	primary := revocationPrimary{
		txIn:          unvaultIn.UnsignedTxIn(),
		witnessUtxo:   unvaultIn.TxOut.TxOut,
		witnessScript: unvaultIn.TxOut.WitnessScript(),
		bip32:         unvaultIn.TxOut.Bip32Derivation(),
		maxSatWeight:  unvaultIn.TxOut.MaxSatWeight(),
	}
	outBip32 := depositDescriptorBip32(depositDescriptor)
	packet, err := buildRevocationPsbt(primary, feebump, CancelTxFeerate, depositDescriptor.ScriptPubKey, outBip32, lockTime)
	if err != nil {
		return nil, err
	}
	return &CancelTransaction{base: newBase(packet)}, nil
}

// FromRawCancelPSBT parses and sanity-checks a serialized Cancel PSBT.
func FromRawCancelPSBT(raw []byte) (*CancelTransaction, error) {
	packet, err := fromPsbtSerialized(raw)
	if err != nil {
		return nil, err
	}
	if err := checkRevocationShape(packet); err != nil {
		return nil, err
	}
	return &CancelTransaction{base: newBase(packet)}, nil
}

func depositDescriptorBip32(d *scripts.DerivedDepositDescriptor) []*psbt.Bip32Derivation {
	out := txio.NewDepositTxOut(0, d)
	return out.Bip32Derivation()
}
