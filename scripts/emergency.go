package scripts

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// EmergencyAddress wraps an out-of-wallet, out-of-protocol native segwit v0 (P2WSH)
// address that Emergency/UnvaultEmergency transactions pay to. Revault treats this
// address as an opaque policy parameter: it is never derived from a descriptor this
// package can compile, only validated to be a spendable P2WSH destination.
type EmergencyAddress struct {
	address btcutil.Address
	params  *chaincfg.Params
}

// NewEmergencyAddress validates that addr is a native segwit v0 P2WSH address on
// params, rejecting P2PKH, P2SH, P2WPKH, and taproot destinations.
func NewEmergencyAddress(addr btcutil.Address, params *chaincfg.Params) (*EmergencyAddress, error) {
	wsh, ok := addr.(*btcutil.AddressWitnessScriptHash)
	if !ok {
		return nil, fmt.Errorf("%w: emergency address must be a native segwit v0 P2WSH address, got %T", ErrBadParameters, addr)
	}
	if !wsh.IsForNet(params) {
		return nil, fmt.Errorf("%w: emergency address is not valid for the requested network", ErrBadParameters)
	}
	return &EmergencyAddress{address: wsh, params: params}, nil
}

// ParseEmergencyAddress decodes a bech32 address string and validates it the same way
// NewEmergencyAddress does.
func ParseEmergencyAddress(s string, params *chaincfg.Params) (*EmergencyAddress, error) {
	addr, err := btcutil.DecodeAddress(s, params)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding emergency address %q: %v", ErrBadParameters, s, err)
	}
	return NewEmergencyAddress(addr, params)
}

// Address returns the underlying validated P2WSH address.
func (e *EmergencyAddress) Address() btcutil.Address {
	return e.address
}

// String renders the bech32 encoding of the address.
func (e *EmergencyAddress) String() string {
	return e.address.EncodeAddress()
}

// ScriptPubKey returns the scriptPubKey an Emergency transaction's sole output pays to.
func (e *EmergencyAddress) ScriptPubKey() ([]byte, error) {
	spk, err := txscript.PayToAddrScript(e.address)
	if err != nil {
		return nil, fmt.Errorf("computing emergency scriptPubKey: %w", err)
	}
	return spk, nil
}
