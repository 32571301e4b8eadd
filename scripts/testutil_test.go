package scripts

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/revault/revault-tx/keys"
)

// testXpub deterministically derives a master extended key from seed byte b repeated
// to hdkeychain's minimum seed length, so tests don't depend on randomness.
func testXpub(t *testing.T, b byte) *hdkeychain.ExtendedKey {
	t.Helper()
	seed := make([]byte, hdkeychain.RecommendedSeedLen)
	for i := range seed {
		seed[i] = b
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("hdkeychain.NewMaster(%d): %v", b, err)
	}
	neutered, err := master.Neuter()
	if err != nil {
		t.Fatalf("Neuter(%d): %v", b, err)
	}
	return neutered
}

// testWildcardKeys builds n wildcard GenericKeys from distinct seeds.
func testWildcardKeys(t *testing.T, n int) []keys.GenericKey {
	t.Helper()
	out := make([]keys.GenericKey, n)
	for i := 0; i < n; i++ {
		out[i] = keys.GenericKey{XPub: testXpub(t, byte(i+1))}
	}
	return out
}

// testSingleKey builds a fixed single-pubkey GenericKey from seed byte b.
func testSingleKey(t *testing.T, b byte) keys.GenericKey {
	t.Helper()
	xpub := testXpub(t, b)
	pk, err := xpub.ECPubKey()
	if err != nil {
		t.Fatalf("ECPubKey(%d): %v", b, err)
	}
	return keys.GenericKey{Single: pk}
}

func testSingleKeys(t *testing.T, n int, offset byte) []keys.GenericKey {
	t.Helper()
	out := make([]keys.GenericKey, n)
	for i := 0; i < n; i++ {
		out[i] = testSingleKey(t, offset+byte(i))
	}
	return out
}

func testRawPubkeys(t *testing.T, n int) [][]byte {
	t.Helper()
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		xpub := testXpub(t, byte(i+1))
		pk, err := xpub.ECPubKey()
		if err != nil {
			t.Fatalf("ECPubKey(%d): %v", i, err)
		}
		out[i] = pk.SerializeCompressed()
	}
	return out
}
