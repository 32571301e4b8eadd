package scripts

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/revault/revault-tx/keys"
)

// DepositDescriptor is the generic (wildcard-xpub) flavor of thresh(n, stakeholders).
type DepositDescriptor struct {
	Stakeholders []keys.GenericKey
}

// NewDepositDescriptor validates the stakeholder set and check_deriveable: every key
// must be a wildcard xpub.
func NewDepositDescriptor(stakeholders []keys.GenericKey) (*DepositDescriptor, error) {
	if len(stakeholders) < 2 {
		return nil, fmt.Errorf("%w: deposit descriptor requires at least 2 stakeholders, got %d", ErrBadParameters, len(stakeholders))
	}
	if err := requireWildcard(stakeholders); err != nil {
		return nil, err
	}
	return &DepositDescriptor{Stakeholders: stakeholders}, nil
}

// String renders a canonical descriptor string: "wsh(thresh(n,k1,k2,...))".
func (d *DepositDescriptor) String() string {
	toks := make([]string, len(d.Stakeholders))
	for i, k := range d.Stakeholders {
		toks[i] = formatGenericKey(k)
	}
	return fmt.Sprintf("wsh(thresh(%d,%s))", len(d.Stakeholders), strings.Join(toks, ","))
}

// ParseDepositDescriptor parses the canonical string form produced by String, enforcing
// the same non-wildcard-key rejection NewDepositDescriptor does.
func ParseDepositDescriptor(s string) (*DepositDescriptor, error) {
	inner, n, err := parseThreshWrapper(s)
	if err != nil {
		return nil, err
	}
	stakeholders := make([]keys.GenericKey, len(inner))
	for i, tok := range inner {
		k, err := parseGenericKey(tok)
		if err != nil {
			return nil, err
		}
		stakeholders[i] = k
	}
	if n != len(stakeholders) {
		return nil, fmt.Errorf("%w: deposit threshold %d does not match n-of-n key count %d", ErrBadParameters, n, len(stakeholders))
	}
	return NewDepositDescriptor(stakeholders)
}

// Derive descends every stakeholder xpub to child index i, producing the concrete
// (derived-flavor) descriptor, compiling its witness script and P2WSH scriptPubKey.
func (d *DepositDescriptor) Derive(index uint32, params *chaincfg.Params) (*DerivedDepositDescriptor, error) {
	derived := make([]*keys.DerivedPublicKey, len(d.Stakeholders))
	for i, k := range d.Stakeholders {
		dk, err := k.Derive(index, nil)
		if err != nil {
			return nil, fmt.Errorf("deriving stakeholder %d: %w", i, err)
		}
		derived[i] = dk
	}
	return newDerivedDepositDescriptor(derived, params)
}

// DerivedDepositDescriptor is the concrete-key flavor of a Deposit descriptor: an
// actual compiled witness script and scriptPubKey ready to be paid to or spent from.
type DerivedDepositDescriptor struct {
	Stakeholders  []*keys.DerivedPublicKey
	WitnessScript []byte
	ScriptPubKey  []byte
	Address       btcutil.Address
}

// NewDerivedDepositDescriptor builds a derived descriptor directly from concrete keys
// (used when reconstructing a descriptor from a PSBT's recorded bip32 derivations
// rather than from a fresh Derive call).
func NewDerivedDepositDescriptor(stakeholders []*keys.DerivedPublicKey, params *chaincfg.Params) (*DerivedDepositDescriptor, error) {
	if len(stakeholders) < 2 {
		return nil, fmt.Errorf("%w: deposit descriptor requires at least 2 stakeholders, got %d", ErrBadParameters, len(stakeholders))
	}
	return newDerivedDepositDescriptor(stakeholders, params)
}

func newDerivedDepositDescriptor(stakeholders []*keys.DerivedPublicKey, params *chaincfg.Params) (*DerivedDepositDescriptor, error) {
	raw := make([][]byte, len(stakeholders))
	for i, k := range stakeholders {
		raw[i] = k.Key.SerializeCompressed()
	}
	witnessScript, err := buildDepositScript(raw)
	if err != nil {
		return nil, err
	}
	spk, addr, err := p2wshFromWitnessScript(witnessScript, params)
	if err != nil {
		return nil, err
	}
	return &DerivedDepositDescriptor{
		Stakeholders:  stakeholders,
		WitnessScript: witnessScript,
		ScriptPubKey:  spk,
		Address:       addr,
	}, nil
}

// p2wshFromWitnessScript computes the P2WSH scriptPubKey and address for a witness
// script: OP_0 <sha256(witness_script)>.
func p2wshFromWitnessScript(witnessScript []byte, params *chaincfg.Params) ([]byte, btcutil.Address, error) {
	addr, err := btcutil.NewAddressWitnessScriptHash(chainhashSha256(witnessScript), params)
	if err != nil {
		return nil, nil, fmt.Errorf("computing p2wsh address: %w", err)
	}
	spk, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("computing p2wsh scriptPubKey: %w", err)
	}
	return spk, addr, nil
}
