package transactions

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/keys"
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// testOutpoint builds a distinct outpoint for each test fixture so inputs never
// collide, keyed off a single byte so callers can just bump a counter.
func testOutpoint(b byte) wire.OutPoint {
	var h chainhash.Hash
	h[0] = b
	return wire.OutPoint{Hash: h, Index: 0}
}

// testParty pairs a wildcard xpub (the descriptor-facing GenericKey) with its private
// master, so tests can both build descriptors and sign against a chosen derivation
// index without depending on randomness.
type testParty struct {
	private *hdkeychain.ExtendedKey
	generic keys.GenericKey
}

func testParties(t *testing.T, n int, seedOffset byte) []testParty {
	t.Helper()
	out := make([]testParty, n)
	for i := 0; i < n; i++ {
		seed := make([]byte, hdkeychain.RecommendedSeedLen)
		for j := range seed {
			seed[j] = seedOffset + byte(i)
		}
		master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("hdkeychain.NewMaster(%d): %v", i, err)
		}
		neutered, err := master.Neuter()
		if err != nil {
			t.Fatalf("Neuter(%d): %v", i, err)
		}
		out[i] = testParty{private: master, generic: keys.GenericKey{XPub: neutered}}
	}
	return out
}

func testGenericKeys(parties []testParty) []keys.GenericKey {
	out := make([]keys.GenericKey, len(parties))
	for i, p := range parties {
		out[i] = p.generic
	}
	return out
}

// testPrivKeyAt derives party p's private key at the given unhardened child index.
func testPrivKeyAt(t *testing.T, p testParty, index uint32) *btcec.PrivateKey {
	t.Helper()
	child, err := p.private.Derive(index)
	if err != nil {
		t.Fatalf("deriving child %d: %v", index, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		t.Fatalf("extracting privkey for child %d: %v", index, err)
	}
	return priv
}

// testCosignerKeyPair builds a single fixed (non-wildcard) cosigner key and its
// matching private key, deterministically seeded.
func testCosignerKeyPair(t *testing.T, seed byte) (keys.GenericKey, *btcec.PrivateKey) {
	t.Helper()
	seedBytes := make([]byte, hdkeychain.RecommendedSeedLen)
	for i := range seedBytes {
		seedBytes[i] = seed
	}
	master, err := hdkeychain.NewMaster(seedBytes, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("hdkeychain.NewMaster: %v", err)
	}
	priv, err := master.ECPrivKey()
	if err != nil {
		t.Fatalf("ECPrivKey: %v", err)
	}
	return keys.GenericKey{Single: priv.PubKey()}, priv
}

// testDepositDescriptor builds an n-of-n deposit descriptor out of parties' wildcard keys.
func testDepositDescriptor(t *testing.T, parties []testParty) *scripts.DepositDescriptor {
	t.Helper()
	d, err := scripts.NewDepositDescriptor(testGenericKeys(parties))
	if err != nil {
		t.Fatalf("NewDepositDescriptor: %v", err)
	}
	return d
}

// testUnvaultDescriptor builds an Unvault descriptor out of stakeholders/managers
// (wildcard) and a fixed set of cosigner keys, one per stakeholder.
func testUnvaultDescriptor(t *testing.T, stakeholders, managers []testParty, managersThreshold int, cosigners []keys.GenericKey, csv uint32) *scripts.UnvaultDescriptor {
	t.Helper()
	d, err := scripts.NewUnvaultDescriptor(testGenericKeys(stakeholders), testGenericKeys(managers), managersThreshold, cosigners, csv)
	if err != nil {
		t.Fatalf("NewUnvaultDescriptor: %v", err)
	}
	return d
}

// testCpfpDescriptor builds a CPFP descriptor (thresh(1, managers)) out of managers'
// wildcard keys.
func testCpfpDescriptor(t *testing.T, managers []testParty) *scripts.CpfpDescriptor {
	t.Helper()
	d, err := scripts.NewCpfpDescriptor(testGenericKeys(managers))
	if err != nil {
		t.Fatalf("NewCpfpDescriptor: %v", err)
	}
	return d
}

// testCosignerKeys builds n fixed cosigner keys (and their matching private keys, in
// the same order) seeded off a base byte.
func testCosignerKeys(t *testing.T, n int, seedOffset byte) ([]keys.GenericKey, []*btcec.PrivateKey) {
	t.Helper()
	generics := make([]keys.GenericKey, n)
	privs := make([]*btcec.PrivateKey, n)
	for i := 0; i < n; i++ {
		generics[i], privs[i] = testCosignerKeyPair(t, seedOffset+byte(i))
	}
	return generics, privs
}

// testSignedUnvaultTx builds and fully finalizes an Unvault transaction spending a fresh
// deposit of depositValue, with a single 1-of-1 manager branch and csv=10, returning the
// finalized transaction alongside the descriptors and parties needed to spend onward
// (e.g. into a Spend or Cancel transaction).
func testSignedUnvaultTx(t *testing.T, depositValue int64, seedOffset byte) (*UnvaultTransaction, *scripts.DerivedUnvaultDescriptor, *scripts.DerivedCpfpDescriptor, []testParty, []testParty) {
	t.Helper()
	stakeholders := testParties(t, 2, seedOffset)
	managers := testParties(t, 1, seedOffset+0x10)
	cosignerKeys, _ := testCosignerKeys(t, 2, seedOffset+0x20)

	depositDesc := testDepositDescriptor(t, stakeholders)
	unvaultDesc := testUnvaultDescriptor(t, stakeholders, managers, 1, cosignerKeys, 10)
	cpfpDesc := testCpfpDescriptor(t, managers)

	derDeposit, err := depositDesc.Derive(0, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("Derive deposit: %v", err)
	}
	derUnvault, err := unvaultDesc.Derive(0, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("Derive unvault: %v", err)
	}
	derCpfp, err := cpfpDesc.Derive(0, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("Derive cpfp: %v", err)
	}

	depositIn := txio.NewDepositTxIn(testOutpoint(seedOffset), txio.NewDepositTxOut(depositValue, derDeposit))
	tx, err := NewUnvaultTransaction(depositIn, derUnvault, derCpfp, 0)
	if err != nil {
		t.Fatalf("NewUnvaultTransaction: %v", err)
	}
	for _, p := range stakeholders {
		signAndAdd(t, &tx.base, 0, testPrivKeyAt(t, p, 0))
	}
	if err := tx.Finalize(); err != nil {
		t.Fatalf("Finalize unvault tx: %v", err)
	}
	return tx, derUnvault, derCpfp, stakeholders, managers
}

// signAndAdd computes the BIP-143 sighash for inputIndex, signs it with priv, and
// records the resulting signature on the transaction via AddSignature.
func signAndAdd(t *testing.T, b *base, inputIndex int, priv *btcec.PrivateKey) {
	t.Helper()
	sighashType := b.packet.Inputs[inputIndex].SighashType
	sighash, err := b.SignatureHash(inputIndex, sighashType)
	if err != nil {
		t.Fatalf("SignatureHash(%d): %v", inputIndex, err)
	}
	sig := ecdsa.Sign(priv, sighash)
	if _, err := b.AddSignature(inputIndex, priv.PubKey(), sig); err != nil {
		t.Fatalf("AddSignature(%d): %v", inputIndex, err)
	}
}
