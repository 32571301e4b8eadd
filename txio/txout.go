// Package txio defines the concrete input/output wrappers that pair a raw wire.TxOut
// with the descriptor metadata (witness script, BIP-32 derivations, max satisfaction
// weight) a PSBT-building transaction needs but a bare wire.TxOut does not carry.
package txio

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/keys"
	"github.com/revault/revault-tx/scripts"
)

// MaxSatWeightMultisig estimates the worst-case witness weight of satisfying a
// CHECKMULTISIG-style N-of-N (or k-of-n) script: one dummy 0x00 element, then an
// up-to-73-byte signature (72-byte DER plus the sighash-type byte) per required signer,
// plus the witness script push itself, a 1-byte length prefix per stack item, one more
// byte per stack item (which also covers the item-count varint), and 4 bytes of slack.
// This mirrors the Rust original's per-descriptor max_sat_weight, which is exact because
// a Miniscript descriptor knows its own satisfaction cost; here it is computed directly
// from script length and signer count since this port's fixed-shape scripts are known
// upfront.
func MaxSatWeightMultisig(numSigners int, witnessScriptLen int) uint32 {
	const (
		sigLen      = 72 + 1 // DER signature plus sighash-type byte
		dummyLen    = 1      // OP_CHECKMULTISIG off-by-one null dummy
		itemOverhead = 1     // varint length prefix per witness stack item, assumed 1 byte
	)
	items := numSigners + dummyLen + 1 // +1 for the witness script push itself
	stackBytes := numSigners*(sigLen+itemOverhead) + dummyLen + itemOverhead + witnessScriptLen + itemOverhead
	// +1 byte per stack item (covering the item count varint), +4 for rounding slack.
	return uint32(stackBytes+items) + 4
}

// DepositTxOut is the output stakeholders pay funds into: a P2WSH output guarded by the
// N-of-N deposit descriptor.
type DepositTxOut struct {
	TxOut      *wire.TxOut
	Descriptor *scripts.DerivedDepositDescriptor
}

// NewDepositTxOut builds a deposit output of the given value under descriptor d.
func NewDepositTxOut(value int64, d *scripts.DerivedDepositDescriptor) *DepositTxOut {
	return &DepositTxOut{
		TxOut:      wire.NewTxOut(value, d.ScriptPubKey),
		Descriptor: d,
	}
}

// WitnessScript returns the script committed to by the P2WSH scriptPubKey.
func (o *DepositTxOut) WitnessScript() []byte { return o.Descriptor.WitnessScript }

// Bip32Derivation renders the PSBT bip32-derivation entries for every stakeholder key.
func (o *DepositTxOut) Bip32Derivation() []*psbt.Bip32Derivation {
	return derivationsFor(o.Descriptor.Stakeholders)
}

// MaxSatWeight estimates the worst-case weight of a witness satisfying this output's
// N-of-N script (every stakeholder must sign).
func (o *DepositTxOut) MaxSatWeight() uint32 {
	return MaxSatWeightMultisig(len(o.Descriptor.Stakeholders), len(o.Descriptor.WitnessScript))
}

// UnvaultTxOut is the Unvault transaction's primary output: the or(stakeholders,
// and(managers, cosigners, older(csv))) script.
type UnvaultTxOut struct {
	TxOut      *wire.TxOut
	Descriptor *scripts.DerivedUnvaultDescriptor
}

// NewUnvaultTxOut builds an unvault output of the given value under descriptor d.
func NewUnvaultTxOut(value int64, d *scripts.DerivedUnvaultDescriptor) *UnvaultTxOut {
	return &UnvaultTxOut{
		TxOut:      wire.NewTxOut(value, d.ScriptPubKey),
		Descriptor: d,
	}
}

// WitnessScript returns the script committed to by the P2WSH scriptPubKey.
func (o *UnvaultTxOut) WitnessScript() []byte { return o.Descriptor.WitnessScript }

// Bip32Derivation renders the PSBT bip32-derivation entries for every stakeholder and
// manager key (the two branches able to spend this output); cosigner keys get no
// entry.
func (o *UnvaultTxOut) Bip32Derivation() []*psbt.Bip32Derivation {
	out := derivationsFor(o.Descriptor.Stakeholders)
	out = append(out, derivationsFor(o.Descriptor.Managers)...)
	return out
}

// MaxSatWeight estimates the worst-case weight across both spend branches: the manager
// branch (a slot per manager key plus a signature per cosigner) or the stakeholder
// revocation branch (a signature per stakeholder), whichever is larger.
func (o *UnvaultTxOut) MaxSatWeight() uint32 {
	wsLen := len(o.Descriptor.WitnessScript)
	managerBranch := MaxSatWeightMultisig(len(o.Descriptor.Managers)+len(o.Descriptor.Cosigners), wsLen)
	stakeholderBranch := MaxSatWeightMultisig(len(o.Descriptor.Stakeholders), wsLen)
	if managerBranch > stakeholderBranch {
		return managerBranch
	}
	return stakeholderBranch
}

// CpfpTxOut is the small fee-bumping output every Unvault and Spend transaction carries,
// spendable by any single manager.
type CpfpTxOut struct {
	TxOut      *wire.TxOut
	Descriptor *scripts.DerivedCpfpDescriptor
}

// NewCpfpTxOut builds a CPFP output of the given value under descriptor d.
func NewCpfpTxOut(value int64, d *scripts.DerivedCpfpDescriptor) *CpfpTxOut {
	return &CpfpTxOut{
		TxOut:      wire.NewTxOut(value, d.ScriptPubKey),
		Descriptor: d,
	}
}

// WitnessScript returns the script committed to by the P2WSH scriptPubKey.
func (o *CpfpTxOut) WitnessScript() []byte { return o.Descriptor.WitnessScript }

// Bip32Derivation renders the PSBT bip32-derivation entries for every manager key.
func (o *CpfpTxOut) Bip32Derivation() []*psbt.Bip32Derivation {
	return derivationsFor(o.Descriptor.Managers)
}

// MaxSatWeight estimates the worst-case weight of satisfying thresh(1, managers): a
// single signature suffices.
func (o *CpfpTxOut) MaxSatWeight() uint32 {
	return MaxSatWeightMultisig(1, len(o.Descriptor.WitnessScript))
}

// ExternalTxOut wraps an output this library does not control the descriptor for: a
// Spend transaction's external recipient outputs.
type ExternalTxOut struct {
	TxOut *wire.TxOut
}

// NewExternalTxOut builds a plain, descriptor-less output.
func NewExternalTxOut(value int64, scriptPubKey []byte) *ExternalTxOut {
	return &ExternalTxOut{TxOut: wire.NewTxOut(value, scriptPubKey)}
}

// derivationsFor renders the PSBT bip32-derivation entries for a set of already-derived
// keys, keyed by each key's compressed serialization.
func derivationsFor(ks []*keys.DerivedPublicKey) []*psbt.Bip32Derivation {
	out := make([]*psbt.Bip32Derivation, len(ks))
	for i, k := range ks {
		out[i] = &psbt.Bip32Derivation{
			PubKey:               k.Key.SerializeCompressed(),
			MasterKeyFingerprint: uint32From4(k.Origin.Fingerprint),
			Bip32Path:            []uint32{k.Origin.ChildNumber},
		}
	}
	return out
}

func uint32From4(b [4]byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
