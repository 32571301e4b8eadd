package transactions

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/txio"
)

// TestFinalizeDepositANDChain exercises the appendANDChain shape through a deposit
// input: every stakeholder must sign, in script order, for the Unvault transaction
// spending it to finalize and verify.
func TestFinalizeDepositANDChain(t *testing.T) {
	stakeholders := testParties(t, 3, 0x10)
	managers := testParties(t, 1, 0x20)
	cosignerKeys, _ := testCosignerKeys(t, 3, 0x30)

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

	depositIn := txio.NewDepositTxIn(testOutpoint(1), txio.NewDepositTxOut(1_000_000, derDeposit))
	unvaultTx, err := NewUnvaultTransaction(depositIn, derUnvault, derCpfp, 0)
	if err != nil {
		t.Fatalf("NewUnvaultTransaction: %v", err)
	}

	for _, p := range stakeholders {
		signAndAdd(t, &unvaultTx.base, 0, testPrivKeyAt(t, p, 0))
	}

	if err := unvaultTx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !unvaultTx.IsValid() {
		t.Error("IsValid() = false after a successful Finalize")
	}
}

func TestFinalizeUnvaultShape(t *testing.T) {
	t.Run("manager branch, k-of-n threshold", func(t *testing.T) {
		stakeholders := testParties(t, 2, 0x40)
		managers := testParties(t, 3, 0x50)
		cosignerKeys, cosignerPrivs := testCosignerKeys(t, 2, 0x60)
		const managersThreshold = 2
		const csv = 10

		depositDesc := testDepositDescriptor(t, stakeholders)
		unvaultDesc := testUnvaultDescriptor(t, stakeholders, managers, managersThreshold, cosignerKeys, csv)
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

		depositIn := txio.NewDepositTxIn(testOutpoint(2), txio.NewDepositTxOut(1_000_000, derDeposit))
		unvaultTx, err := NewUnvaultTransaction(depositIn, derUnvault, derCpfp, 0)
		if err != nil {
			t.Fatalf("NewUnvaultTransaction: %v", err)
		}
		for _, p := range stakeholders {
			signAndAdd(t, &unvaultTx.base, 0, testPrivKeyAt(t, p, 0))
		}
		if err := unvaultTx.Finalize(); err != nil {
			t.Fatalf("Finalize unvault tx: %v", err)
		}

		spendUnvaultIn, err := unvaultTx.SpendUnvaultTxIn(derUnvault)
		if err != nil {
			t.Fatalf("SpendUnvaultTxIn: %v", err)
		}

		destScript := derDeposit.ScriptPubKey
		destination := txio.NewExternalTxOut(300_000, destScript)
		spendTx, err := NewSpendTransaction([]*txio.UnvaultTxIn{spendUnvaultIn}, []*txio.ExternalTxOut{destination}, nil, derCpfp, 0, true)
		if err != nil {
			t.Fatalf("NewSpendTransaction: %v", err)
		}

		// Exactly managersThreshold managers sign, in script order; a real deployment
		// could pick any subset, but the first k suffices to prove the k-of-n path.
		for _, p := range managers[:managersThreshold] {
			signAndAdd(t, &spendTx.base, 0, testPrivKeyAt(t, p, 0))
		}
		for _, priv := range cosignerPrivs {
			signAndAdd(t, &spendTx.base, 0, priv)
		}

		if err := spendTx.Finalize(); err != nil {
			t.Fatalf("Finalize spend tx: %v", err)
		}
		if !spendTx.IsValid() {
			t.Error("IsValid() = false after a successful Finalize")
		}
	})

	t.Run("manager branch, n-of-n AND-chain", func(t *testing.T) {
		stakeholders := testParties(t, 2, 0x70)
		managers := testParties(t, 2, 0x80)
		cosignerKeys, cosignerPrivs := testCosignerKeys(t, 2, 0x90)
		const csv = 10

		depositDesc := testDepositDescriptor(t, stakeholders)
		unvaultDesc := testUnvaultDescriptor(t, stakeholders, managers, len(managers), cosignerKeys, csv)
		cpfpDesc := testCpfpDescriptor(t, managers)

		derDeposit, err := depositDesc.Derive(1, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("Derive deposit: %v", err)
		}
		derUnvault, err := unvaultDesc.Derive(1, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("Derive unvault: %v", err)
		}
		derCpfp, err := cpfpDesc.Derive(1, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("Derive cpfp: %v", err)
		}

		depositIn := txio.NewDepositTxIn(testOutpoint(3), txio.NewDepositTxOut(1_000_000, derDeposit))
		unvaultTx, err := NewUnvaultTransaction(depositIn, derUnvault, derCpfp, 0)
		if err != nil {
			t.Fatalf("NewUnvaultTransaction: %v", err)
		}
		for _, p := range stakeholders {
			signAndAdd(t, &unvaultTx.base, 0, testPrivKeyAt(t, p, 1))
		}
		if err := unvaultTx.Finalize(); err != nil {
			t.Fatalf("Finalize unvault tx: %v", err)
		}

		spendUnvaultIn, err := unvaultTx.SpendUnvaultTxIn(derUnvault)
		if err != nil {
			t.Fatalf("SpendUnvaultTxIn: %v", err)
		}
		destination := txio.NewExternalTxOut(300_000, derDeposit.ScriptPubKey)
		spendTx, err := NewSpendTransaction([]*txio.UnvaultTxIn{spendUnvaultIn}, []*txio.ExternalTxOut{destination}, nil, derCpfp, 0, true)
		if err != nil {
			t.Fatalf("NewSpendTransaction: %v", err)
		}

		for _, p := range managers {
			signAndAdd(t, &spendTx.base, 0, testPrivKeyAt(t, p, 1))
		}
		for _, priv := range cosignerPrivs {
			signAndAdd(t, &spendTx.base, 0, priv)
		}

		if err := spendTx.Finalize(); err != nil {
			t.Fatalf("Finalize spend tx: %v", err)
		}
		if !spendTx.IsValid() {
			t.Error("IsValid() = false after a successful Finalize")
		}
	})

	t.Run("stakeholder revocation branch", func(t *testing.T) {
		stakeholders := testParties(t, 2, 0xA0)
		managers := testParties(t, 2, 0xB0)
		cosignerKeys, _ := testCosignerKeys(t, 2, 0xC0)
		const csv = 10

		depositDesc := testDepositDescriptor(t, stakeholders)
		unvaultDesc := testUnvaultDescriptor(t, stakeholders, managers, len(managers), cosignerKeys, csv)
		cpfpDesc := testCpfpDescriptor(t, managers)

		derDeposit, err := depositDesc.Derive(2, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("Derive deposit: %v", err)
		}
		derUnvault, err := unvaultDesc.Derive(2, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("Derive unvault: %v", err)
		}
		derCpfp, err := cpfpDesc.Derive(2, &chaincfg.MainNetParams)
		if err != nil {
			t.Fatalf("Derive cpfp: %v", err)
		}

		depositIn := txio.NewDepositTxIn(testOutpoint(4), txio.NewDepositTxOut(1_000_000, derDeposit))
		unvaultTx, err := NewUnvaultTransaction(depositIn, derUnvault, derCpfp, 0)
		if err != nil {
			t.Fatalf("NewUnvaultTransaction: %v", err)
		}
		for _, p := range stakeholders {
			signAndAdd(t, &unvaultTx.base, 0, testPrivKeyAt(t, p, 2))
		}
		if err := unvaultTx.Finalize(); err != nil {
			t.Fatalf("Finalize unvault tx: %v", err)
		}

		revaultIn, err := unvaultTx.RevaultUnvaultTxIn(derUnvault)
		if err != nil {
			t.Fatalf("RevaultUnvaultTxIn: %v", err)
		}
		cancelTx, err := NewCancelTransaction(revaultIn, nil, derDeposit, 0)
		if err != nil {
			t.Fatalf("NewCancelTransaction: %v", err)
		}
		for _, p := range stakeholders {
			signAndAdd(t, &cancelTx.base, 0, testPrivKeyAt(t, p, 2))
		}

		if err := cancelTx.Finalize(); err != nil {
			t.Fatalf("Finalize cancel tx: %v", err)
		}
		if !cancelTx.IsValid() {
			t.Error("IsValid() = false after a successful Finalize")
		}
	})
}

// TestFinalizeBareMultisig exercises the appendBareMultisig shape (thresh(1,managers))
// through an Unvault transaction's own CPFP output, spent by a CpfpTransaction.
func TestFinalizeBareMultisig(t *testing.T) {
	stakeholders := testParties(t, 2, 0xD0)
	managers := testParties(t, 3, 0xE0)
	cosignerKeys, _ := testCosignerKeys(t, 2, 0xF0)

	depositDesc := testDepositDescriptor(t, stakeholders)
	unvaultDesc := testUnvaultDescriptor(t, stakeholders, managers, len(managers), cosignerKeys, 10)
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

	depositIn := txio.NewDepositTxIn(testOutpoint(5), txio.NewDepositTxOut(1_000_000, derDeposit))
	unvaultTx, err := NewUnvaultTransaction(depositIn, derUnvault, derCpfp, 0)
	if err != nil {
		t.Fatalf("NewUnvaultTransaction: %v", err)
	}
	for _, p := range stakeholders {
		signAndAdd(t, &unvaultTx.base, 0, testPrivKeyAt(t, p, 0))
	}
	if err := unvaultTx.Finalize(); err != nil {
		t.Fatalf("Finalize unvault tx: %v", err)
	}

	cpfpOutIndex := -1
	for i, out := range unvaultTx.Tx().TxOut {
		if bytesEqual(out.PkScript, derCpfp.ScriptPubKey) {
			cpfpOutIndex = i
		}
	}
	if cpfpOutIndex < 0 {
		t.Fatalf("unvault transaction carries no output matching the cpfp descriptor")
	}
	txid := unvaultTx.Txid()
	cpfpOutpoint := *wire.NewOutPoint(&txid, uint32(cpfpOutIndex))
	cpfpIn := txio.NewCpfpTxIn(cpfpOutpoint, txio.NewCpfpTxOut(unvaultTx.Tx().TxOut[cpfpOutIndex].Value, derCpfp))

	cpfpTx, err := NewCpfpTransaction([]*txio.CpfpTxIn{cpfpIn}, 1000, 100, 10, nil)
	if err != nil {
		t.Fatalf("NewCpfpTransaction: %v", err)
	}
	signAndAdd(t, &cpfpTx.base, 0, testPrivKeyAt(t, managers[0], 0))

	if err := cpfpTx.Finalize(); err != nil {
		t.Fatalf("Finalize cpfp tx: %v", err)
	}
	if !cpfpTx.IsValid() {
		t.Error("IsValid() = false after a successful Finalize")
	}
}
