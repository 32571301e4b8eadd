package transactions

import (
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// UnvaultEmergencyTransaction spends an Unvault output directly to the emergency
// address, at the fixed EmerTxFeerate: the revocation path taken once funds are already
// mid-Unvault and need to be pre-empted straight to the emergency address rather than
// back into a fresh deposit.
type UnvaultEmergencyTransaction struct {
	base
}

// NewUnvaultEmergencyTransaction builds an UnvaultEmergency transaction spending
// unvaultIn to addr.
func NewUnvaultEmergencyTransaction(unvaultIn *txio.UnvaultTxIn, feebump *feebumpInput, addr *scripts.EmergencyAddress, lockTime uint32) (*UnvaultEmergencyTransaction, error) {
	primary := revocationPrimary{
		txIn:          unvaultIn.UnsignedTxIn(),
		witnessUtxo:   unvaultIn.TxOut.TxOut,
		witnessScript: unvaultIn.TxOut.WitnessScript(),
		bip32:         unvaultIn.TxOut.Bip32Derivation(),
		maxSatWeight:  unvaultIn.TxOut.MaxSatWeight(),
	}
	spk, err := addr.ScriptPubKey()
	if err != nil {
		return nil, err
	}
	packet, err := buildRevocationPsbt(primary, feebump, EmerTxFeerate, spk, nil, lockTime)
	if err != nil {
		return nil, err
	}
	return &UnvaultEmergencyTransaction{base: newBase(packet)}, nil
}

// FromRawUnvaultEmergencyPSBT parses a serialized UnvaultEmergency PSBT.
func FromRawUnvaultEmergencyPSBT(raw []byte) (*UnvaultEmergencyTransaction, error) {
	packet, err := fromPsbtSerialized(raw)
	if err != nil {
		return nil, err
	}
	if err := checkEmergencyOutputShape(packet); err != nil {
		return nil, err
	}
	return &UnvaultEmergencyTransaction{base: newBase(packet)}, nil
}
