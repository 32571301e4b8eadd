package keys

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func testPubKeyHex(t *testing.T) string {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return hex.EncodeToString(priv.PubKey().SerializeCompressed())
}

func TestParseDerivedPublicKey(t *testing.T) {
	keyHex := testPubKeyHex(t)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid min index", "[aabbccdd/0]" + keyHex, false},
		{"valid large index", "[aabbccdd/10000000]" + keyHex, false},
		{"valid max unhardened index", "[12345678/2147483647]" + keyHex, false},
		{"empty origin", "[]" + keyHex, true},
		{"empty index", "[aabbccdd/]" + keyHex, true},
		{"malformed fingerprint", "[aaa/0]" + keyHex, true},
		{"hardened index", "[aabbccdd/2147483648]" + keyHex, true},
		{"missing brackets", "aabbccdd/0" + keyHex, true},
		{"too short", "[aabbccdd/0]abcd", true},
		{"non hex fingerprint", "[zzzzzzzz/0]" + keyHex, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDerivedPublicKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDerivedPublicKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got == nil {
				t.Errorf("ParseDerivedPublicKey(%q) returned nil key", tt.input)
			}
		})
	}
}

func TestDerivedPublicKeyRoundTrip(t *testing.T) {
	keyHex := testPubKeyHex(t)
	input := "[aabbccdd/42]" + keyHex

	parsed, err := ParseDerivedPublicKey(input)
	if err != nil {
		t.Fatalf("ParseDerivedPublicKey() error = %v", err)
	}
	if got := parsed.String(); got != input {
		t.Errorf("String() = %q, want %q", got, input)
	}

	if parsed.Origin.ChildNumber != 42 {
		t.Errorf("ChildNumber = %d, want 42", parsed.Origin.ChildNumber)
	}
	if hex.EncodeToString(parsed.Origin.Fingerprint[:]) != "aabbccdd" {
		t.Errorf("Fingerprint = %x, want aabbccdd", parsed.Origin.Fingerprint)
	}
}

func TestParseDerivedPublicKeyNonASCII(t *testing.T) {
	keyHex := testPubKeyHex(t)
	input := "[aabbccdd/0]" + keyHex + "\x01"
	if _, err := ParseDerivedPublicKey(input); err == nil {
		t.Error("expected error for out-of-range trailing byte")
	}
	if !strings.HasPrefix(input[len(input)-1:], "\x01") {
		t.Fatalf("test setup bug")
	}
}

func TestHashToHash160Deterministic(t *testing.T) {
	keyHex := testPubKeyHex(t)
	d, err := ParseDerivedPublicKey("[aabbccdd/0]" + keyHex)
	if err != nil {
		t.Fatalf("ParseDerivedPublicKey() error = %v", err)
	}
	h1 := HashToHash160(d)
	h2 := HashToHash160(d)
	if h1 != h2 {
		t.Error("HashToHash160 not deterministic")
	}
	if d.ToPubkeyHash() != d {
		t.Error("ToPubkeyHash should return the receiver itself")
	}
}

func TestCosignerDerived(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	d := CosignerDerived(priv.PubKey())
	if d.Origin.Fingerprint != CosignerFingerprint {
		t.Errorf("Fingerprint = %x, want zero", d.Origin.Fingerprint)
	}
	if d.Origin.ChildNumber != 0 {
		t.Errorf("ChildNumber = %d, want 0", d.Origin.ChildNumber)
	}
}
