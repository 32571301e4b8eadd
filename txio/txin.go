package txio

import (
	"github.com/btcsuite/btcd/wire"
)

// RBFSequence is the nSequence value this library uses on every input it builds except
// an Unvault input on the manager spend path (which carries the CSV value): RBF
// signaling (< 0xfffffffe), with the disable flag (bit 31) set so no relative locktime
// applies.
const RBFSequence = uint32(0xfffffffd)

// DepositTxIn spends a deposit output; the sole input of a freshly built Unvault
// transaction.
type DepositTxIn struct {
	Outpoint wire.OutPoint
	TxOut    *DepositTxOut
	Sequence uint32
}

// NewDepositTxIn wraps a deposit outpoint and its txout, defaulting to RBF signaling.
func NewDepositTxIn(outpoint wire.OutPoint, txOut *DepositTxOut) *DepositTxIn {
	return &DepositTxIn{Outpoint: outpoint, TxOut: txOut, Sequence: RBFSequence}
}

// UnsignedTxIn renders the bare wire.TxIn this input contributes to an unsigned
// transaction (no script_sig, no witness).
func (i *DepositTxIn) UnsignedTxIn() *wire.TxIn {
	return &wire.TxIn{PreviousOutPoint: i.Outpoint, Sequence: i.Sequence}
}

// UnvaultTxIn spends an Unvault output, either through the stakeholder revocation path
// (Cancel/Emergency/UnvaultEmergency, CSV-unconstrained) or the manager spend path
// (Spend, sequence set to the descriptor's CSV value).
type UnvaultTxIn struct {
	Outpoint wire.OutPoint
	TxOut    *UnvaultTxOut
	Sequence uint32
}

// NewRevaultUnvaultTxIn builds an Unvault input for the revocation (stakeholder) spend
// path: RBF-signaled, CSV-unconstrained.
func NewRevaultUnvaultTxIn(outpoint wire.OutPoint, txOut *UnvaultTxOut) *UnvaultTxIn {
	return &UnvaultTxIn{Outpoint: outpoint, TxOut: txOut, Sequence: RBFSequence}
}

// NewSpendUnvaultTxIn builds an Unvault input for the manager spend path: nSequence
// must encode the descriptor's own CSV value so OP_CHECKSEQUENCEVERIFY succeeds.
func NewSpendUnvaultTxIn(outpoint wire.OutPoint, txOut *UnvaultTxOut) *UnvaultTxIn {
	return &UnvaultTxIn{Outpoint: outpoint, TxOut: txOut, Sequence: txOut.Descriptor.CSV}
}

// UnsignedTxIn renders the bare wire.TxIn this input contributes to an unsigned
// transaction (no script_sig, no witness).
func (i *UnvaultTxIn) UnsignedTxIn() *wire.TxIn {
	return &wire.TxIn{PreviousOutPoint: i.Outpoint, Sequence: i.Sequence}
}

// CpfpTxIn spends a CPFP output; used both as the Unvault/Spend's own first input in a
// chain-of-custody fee bump, and as an additional available UTXO the CpfpTransaction
// builder may pull in to cover its target feerate.
type CpfpTxIn struct {
	Outpoint wire.OutPoint
	TxOut    *CpfpTxOut
	Sequence uint32
}

// NewCpfpTxIn wraps a CPFP outpoint and its txout, defaulting to RBF signaling.
func NewCpfpTxIn(outpoint wire.OutPoint, txOut *CpfpTxOut) *CpfpTxIn {
	return &CpfpTxIn{Outpoint: outpoint, TxOut: txOut, Sequence: RBFSequence}
}

// UnsignedTxIn renders the bare wire.TxIn this input contributes to an unsigned
// transaction (no script_sig, no witness).
func (i *CpfpTxIn) UnsignedTxIn() *wire.TxIn {
	return &wire.TxIn{PreviousOutPoint: i.Outpoint, Sequence: i.Sequence}
}
