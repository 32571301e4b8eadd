package scripts

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/revault/revault-tx/keys"
)

// formatGenericKey renders a GenericKey the way a descriptor string embeds it: the
// xpub's base58 string suffixed with the unhardened wildcard marker "/*" for wildcard
// keys, or the raw compressed-hex pubkey for single (cosigner) keys.
func formatGenericKey(k keys.GenericKey) string {
	if k.IsWildcard() {
		return k.XPub.String() + "/*"
	}
	return fmt.Sprintf("%x", k.Single.SerializeCompressed())
}

// parseGenericKey parses one descriptor-string key token back into a GenericKey.
func parseGenericKey(tok string) (keys.GenericKey, error) {
	if strings.HasSuffix(tok, "/*") {
		xpubStr := strings.TrimSuffix(tok, "/*")
		xpub, err := hdkeychain.NewKeyFromString(xpubStr)
		if err != nil {
			return keys.GenericKey{}, fmt.Errorf("%w: bad xpub %q: %v", ErrNonWildcardKeys, xpubStr, err)
		}
		return keys.GenericKey{XPub: xpub}, nil
	}
	raw, err := hex.DecodeString(tok)
	if err != nil {
		return keys.GenericKey{}, fmt.Errorf("%w: bad single key %q: %v", ErrNonWildcardKeys, tok, err)
	}
	pk, err := btcec.ParsePubKey(raw)
	if err != nil {
		return keys.GenericKey{}, fmt.Errorf("%w: bad single key %q: %v", ErrNonWildcardKeys, tok, err)
	}
	return keys.GenericKey{Single: pk}, nil
}

// requireWildcard checks every key in the slice is a wildcard xpub, the
// "check_deriveable" invariant the Rust original enforces on stakeholder/manager keys.
func requireWildcard(ks []keys.GenericKey) error {
	for i, k := range ks {
		if !k.IsWildcard() {
			return fmt.Errorf("%w: key %d is not a wildcard xpub", ErrNonWildcardKeys, i)
		}
	}
	return nil
}

// hasAnyWildcard reports whether at least one key in the slice is a wildcard xpub.
func hasAnyWildcard(ks []keys.GenericKey) bool {
	for _, k := range ks {
		if k.IsWildcard() {
			return true
		}
	}
	return false
}
