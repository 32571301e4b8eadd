package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// GenericKey is the generic-flavor counterpart of DerivedPublicKey: either an
// unhardened-wildcard extended public key (a stakeholder or manager key, derived per
// vault) or a single fixed public key (a cosigner key, the same at every index).
type GenericKey struct {
	// XPub is set for wildcard keys; Single is set for fixed cosigner keys. Exactly
	// one of the two is non-nil.
	XPub   *hdkeychain.ExtendedKey
	Single *btcec.PublicKey
}

// IsWildcard reports whether this key must be derived per-index.
func (g GenericKey) IsWildcard() bool {
	return g.XPub != nil
}

// Fingerprint returns the fingerprint Miniscript must record as this key's derivation
// origin: HASH160(pubkey)[:4] of the account-level extended key itself. This is *not*
// hdkeychain's ParentFingerprint (which identifies this key's parent) — Revault records
// the origin of the account xpub that stakeholders exchange out of band, and every
// descendant key derived from it shares that one fingerprint.
func (g GenericKey) Fingerprint() ([4]byte, error) {
	if g.XPub == nil {
		return [4]byte{}, fmt.Errorf("keys: Fingerprint called on a non-xpub GenericKey")
	}
	pubKey, err := g.XPub.ECPubKey()
	if err != nil {
		return [4]byte{}, fmt.Errorf("deriving fingerprint: %w", err)
	}
	var fp [4]byte
	copy(fp[:], btcutil.Hash160(pubKey.SerializeCompressed())[:4])
	return fp, nil
}

// Derive descends a wildcard xpub to the given unhardened index, or passes a fixed
// cosigner key through unchanged. masterFingerprint, when non-nil, overrides the
// fingerprint recorded as the derived key's origin; callers normally leave it nil so
// Fingerprint() (this xpub's own) is used, matching the single-account-per-descriptor
// case Revault always operates in.
func (g GenericKey) Derive(index uint32, masterFingerprint *[4]byte) (*DerivedPublicKey, error) {
	if g.XPub != nil {
		fp := masterFingerprint
		if fp == nil {
			self, err := g.Fingerprint()
			if err != nil {
				return nil, err
			}
			fp = &self
		}
		return DeriveChild(*fp, g.XPub, index)
	}
	if g.Single != nil {
		return CosignerDerived(g.Single), nil
	}
	return nil, fmt.Errorf("%w: GenericKey has neither xpub nor single key set", ErrMalformed)
}
