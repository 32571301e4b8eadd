package transactions

import (
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// EmergencyTransaction spends a deposit output directly to the emergency address, at
// the fixed EmerTxFeerate: the last-resort path taken when a deposit itself, not an
// in-flight Unvault attempt, needs to be pre-empted.
type EmergencyTransaction struct {
	base
}

// NewEmergencyTransaction builds an Emergency transaction spending depositIn to addr.
func NewEmergencyTransaction(depositIn *txio.DepositTxIn, feebump *feebumpInput, addr *scripts.EmergencyAddress, lockTime uint32) (*EmergencyTransaction, error) {
	primary := revocationPrimary{
		txIn:          depositIn.UnsignedTxIn(),
		witnessUtxo:   depositIn.TxOut.TxOut,
		witnessScript: depositIn.TxOut.WitnessScript(),
		bip32:         depositIn.TxOut.Bip32Derivation(),
		maxSatWeight:  depositIn.TxOut.MaxSatWeight(),
	}
	spk, err := addr.ScriptPubKey()
	if err != nil {
		return nil, err
	}
	packet, err := buildRevocationPsbt(primary, feebump, EmerTxFeerate, spk, nil, lockTime)
	if err != nil {
		return nil, err
	}
	return &EmergencyTransaction{base: newBase(packet)}, nil
}

// FromRawEmergencyPSBT parses a serialized Emergency PSBT. The emergency output, unlike
// every other transaction's, carries no bip32 derivations (it pays an external address
// this library does not control the keys for), so the output count and the input shape
// are checked but not the output's derivations.
func FromRawEmergencyPSBT(raw []byte) (*EmergencyTransaction, error) {
	packet, err := fromPsbtSerialized(raw)
	if err != nil {
		return nil, err
	}
	if err := checkEmergencyOutputShape(packet); err != nil {
		return nil, err
	}
	return &EmergencyTransaction{base: newBase(packet)}, nil
}
