package scripts

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/revault/revault-tx/keys"
)

// CpfpDescriptor is the generic flavor of thresh(1, managers): any single manager may
// authorize spending the CPFP output.
type CpfpDescriptor struct {
	Managers []keys.GenericKey
}

// NewCpfpDescriptor validates the manager set and check_deriveable.
func NewCpfpDescriptor(managers []keys.GenericKey) (*CpfpDescriptor, error) {
	if len(managers) < 1 {
		return nil, fmt.Errorf("%w: cpfp descriptor requires at least 1 manager", ErrBadParameters)
	}
	if err := requireWildcard(managers); err != nil {
		return nil, err
	}
	return &CpfpDescriptor{Managers: managers}, nil
}

// String renders "wsh(thresh(1,k1,k2,...))".
func (d *CpfpDescriptor) String() string {
	toks := make([]string, len(d.Managers))
	for i, k := range d.Managers {
		toks[i] = formatGenericKey(k)
	}
	return fmt.Sprintf("wsh(thresh(1,%s))", strings.Join(toks, ","))
}

// ParseCpfpDescriptor parses the canonical string form.
func ParseCpfpDescriptor(s string) (*CpfpDescriptor, error) {
	inner, n, err := parseThreshWrapper(s)
	if err != nil {
		return nil, err
	}
	if n != 1 {
		return nil, fmt.Errorf("%w: cpfp threshold must be 1, got %d", ErrBadParameters, n)
	}
	managers := make([]keys.GenericKey, len(inner))
	for i, tok := range inner {
		k, err := parseGenericKey(tok)
		if err != nil {
			return nil, err
		}
		managers[i] = k
	}
	return NewCpfpDescriptor(managers)
}

// Derive descends every manager xpub to child index i.
func (d *CpfpDescriptor) Derive(index uint32, params *chaincfg.Params) (*DerivedCpfpDescriptor, error) {
	derived := make([]*keys.DerivedPublicKey, len(d.Managers))
	for i, k := range d.Managers {
		dk, err := k.Derive(index, nil)
		if err != nil {
			return nil, fmt.Errorf("deriving manager %d: %w", i, err)
		}
		derived[i] = dk
	}
	return newDerivedCpfpDescriptor(derived, params)
}

// DerivedCpfpDescriptor is the concrete-key flavor of a CPFP descriptor.
type DerivedCpfpDescriptor struct {
	Managers      []*keys.DerivedPublicKey
	WitnessScript []byte
	ScriptPubKey  []byte
	Address       btcutil.Address
}

func newDerivedCpfpDescriptor(managers []*keys.DerivedPublicKey, params *chaincfg.Params) (*DerivedCpfpDescriptor, error) {
	raw := make([][]byte, len(managers))
	for i, k := range managers {
		raw[i] = k.Key.SerializeCompressed()
	}
	witnessScript, err := buildCpfpScript(raw)
	if err != nil {
		return nil, err
	}
	spk, addr, err := p2wshFromWitnessScript(witnessScript, params)
	if err != nil {
		return nil, err
	}
	return &DerivedCpfpDescriptor{
		Managers:      managers,
		WitnessScript: witnessScript,
		ScriptPubKey:  spk,
		Address:       addr,
	}, nil
}
