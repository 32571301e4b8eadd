// Package keys implements the Revault key primitives: a derived public key that
// carries its own BIP-32 origin, the way descriptor scripts expect to find it once a
// wildcard xpub has been walked down to a concrete derivation index.
package keys

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HardenedKeyStart is the first hardened child number (BIP-32).
const HardenedKeyStart = uint32(0x80000000)

// CosignerFingerprint is the origin fingerprint assigned to cosigner keys, which are
// supplied as single fixed pubkeys rather than derived from a wildcard xpub.
var CosignerFingerprint = [4]byte{0x00, 0x00, 0x00, 0x00}

// Origin is the (master key fingerprint, child number) pair Miniscript uses to
// annotate a derived key in a PSBT's bip32_derivation map.
type Origin struct {
	Fingerprint [4]byte
	ChildNumber uint32
}

// DerivedPublicKey is a public key paired with the BIP-32 origin it was derived
// through. It implements its own pubkey-hash under Miniscript: the hash of a
// DerivedPublicKey is simply itself, and hashing to HASH160 operates on the
// underlying compressed point.
type DerivedPublicKey struct {
	Origin Origin
	Key    *btcec.PublicKey
}

// NewDerivedPublicKey builds a DerivedPublicKey from its parts. ChildNumber must be
// below HardenedKeyStart: Revault descriptors never use hardened derivation below the
// account level, which is fixed up-front by the caller.
func NewDerivedPublicKey(fingerprint [4]byte, childNumber uint32, key *btcec.PublicKey) (*DerivedPublicKey, error) {
	if childNumber >= HardenedKeyStart {
		return nil, fmt.Errorf("%w: child number %d is hardened", ErrMalformed, childNumber)
	}
	return &DerivedPublicKey{
		Origin: Origin{Fingerprint: fingerprint, ChildNumber: childNumber},
		Key:    key,
	}, nil
}

// ErrMalformed is wrapped by every DerivedPublicKey parsing failure.
var ErrMalformed = fmt.Errorf("malformed derived public key")

// String renders the key in Revault's textual form: "[<hex fingerprint>/<index>]<hex key>".
func (d *DerivedPublicKey) String() string {
	return fmt.Sprintf("[%s/%d]%s", hex.EncodeToString(d.Origin.Fingerprint[:]), d.Origin.ChildNumber,
		hex.EncodeToString(d.Key.SerializeCompressed()))
}

// ParseDerivedPublicKey parses the "[fingerprint/index]key" form. It follows the
// original Revault implementation's exact character-range check (bytes in [20, 127])
// rather than a looser "printable ASCII" reading, since the grammar itself does not say
// which printable range it means.
func ParseDerivedPublicKey(s string) (*DerivedPublicKey, error) {
	if len(s) < 78 {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrMalformed, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 20 || s[i] > 127 {
			return nil, fmt.Errorf("%w: byte %d (0x%02x) out of range", ErrMalformed, i, s[i])
		}
	}
	if s[0] != '[' {
		return nil, fmt.Errorf("%w: missing leading '['", ErrMalformed)
	}
	closeIdx := strings.IndexByte(s, ']')
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: missing ']'", ErrMalformed)
	}
	originPart := s[1:closeIdx]
	keyPart := s[closeIdx+1:]

	if len(originPart) < 10 {
		return nil, fmt.Errorf("%w: origin %q too short", ErrMalformed, originPart)
	}
	if originPart[8] != '/' {
		return nil, fmt.Errorf("%w: expected '/' after fingerprint in %q", ErrMalformed, originPart)
	}
	fpBytes, err := hex.DecodeString(originPart[:8])
	if err != nil || len(fpBytes) != 4 {
		return nil, fmt.Errorf("%w: bad fingerprint %q: %v", ErrMalformed, originPart[:8], err)
	}
	childNumber, err := strconv.ParseUint(originPart[9:], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad child number %q: %v", ErrMalformed, originPart[9:], err)
	}
	if uint32(childNumber) >= HardenedKeyStart {
		return nil, fmt.Errorf("%w: hardened child number %d", ErrMalformed, childNumber)
	}

	keyBytes, err := hex.DecodeString(keyPart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad key hex: %v", ErrMalformed, err)
	}
	pubKey, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: bad public key: %v", ErrMalformed, err)
	}

	var fp [4]byte
	copy(fp[:], fpBytes)
	return &DerivedPublicKey{
		Origin: Origin{Fingerprint: fp, ChildNumber: uint32(childNumber)},
		Key:    pubKey,
	}, nil
}

// ToPubkeyHash returns the key Miniscript uses as this key's own hash: itself.
func (d *DerivedPublicKey) ToPubkeyHash() *DerivedPublicKey {
	return d
}

// HashToHash160 computes HASH160 of the key's compressed serialization, the value a
// compiled Miniscript P2PKH/pubkeyhash fragment would check a witness element against.
func HashToHash160(d *DerivedPublicKey) [20]byte {
	h := chainhash.Hash160(d.Key.SerializeCompressed())
	var out [20]byte
	copy(out[:], h)
	return out
}

// Equal reports whether two derived keys carry the same origin and point.
func (d *DerivedPublicKey) Equal(other *DerivedPublicKey) bool {
	if other == nil {
		return false
	}
	return d.Origin == other.Origin && d.Key.IsEqual(other.Key)
}

// DeriveChild derives the i-th unhardened child of an extended public key and returns
// it as a DerivedPublicKey whose origin fingerprint is the *master* key's fingerprint
// (as Revault descriptors record it), not the immediate parent's.
func DeriveChild(masterFingerprint [4]byte, xpub *hdkeychain.ExtendedKey, index uint32) (*DerivedPublicKey, error) {
	if index >= HardenedKeyStart {
		return nil, fmt.Errorf("%w: cannot derive hardened index %d from an xpub", ErrMalformed, index)
	}
	child, err := xpub.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("deriving child %d: %w", index, err)
	}
	pubKey, err := child.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("extracting pubkey for child %d: %w", index, err)
	}
	return &DerivedPublicKey{
		Origin: Origin{Fingerprint: masterFingerprint, ChildNumber: index},
		Key:    pubKey,
	}, nil
}

// CosignerDerived wraps a cosigner's single fixed pubkey as a DerivedPublicKey with the
// conventional all-zero origin fingerprint and index 0, matching how the original
// Revault implementation tags non-xpub (single raw pubkey) cosigner keys once derived.
func CosignerDerived(key *btcec.PublicKey) *DerivedPublicKey {
	return &DerivedPublicKey{
		Origin: Origin{Fingerprint: CosignerFingerprint, ChildNumber: 0},
		Key:    key,
	}
}
