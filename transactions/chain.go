package transactions

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/scripts"
	"github.com/revault/revault-tx/txio"
)

// TransactionChainManager is the chain of pre-signed transactions a manager derives out
// of a single deposit: the Unvault transaction and its Cancel transaction.
type TransactionChainManager struct {
	Unvault *UnvaultTransaction
	Cancel  *CancelTransaction
}

// NewTransactionChainManager derives the deposit/unvault/cpfp descriptors at
// derivationIndex and builds the Unvault transaction spending depositOutpoint plus the
// Cancel transaction spending that Unvault output back to a fresh deposit. No feebump
// input is attached to the Cancel transaction.
func NewTransactionChainManager(depositOutpoint wire.OutPoint, depositAmount int64, depositDescriptor *scripts.DepositDescriptor, unvaultDescriptor *scripts.UnvaultDescriptor, cpfpDescriptor *scripts.CpfpDescriptor, derivationIndex uint32, lockTime uint32, params *chaincfg.Params) (*TransactionChainManager, error) {
	derDeposit, err := depositDescriptor.Derive(derivationIndex, params)
	if err != nil {
		return nil, err
	}
	derUnvault, err := unvaultDescriptor.Derive(derivationIndex, params)
	if err != nil {
		return nil, err
	}
	derCpfp, err := cpfpDescriptor.Derive(derivationIndex, params)
	if err != nil {
		return nil, err
	}

	depositTxIn := txio.NewDepositTxIn(depositOutpoint, txio.NewDepositTxOut(depositAmount, derDeposit))
	unvaultTx, err := NewUnvaultTransaction(depositTxIn, derUnvault, derCpfp, lockTime)
	if err != nil {
		return nil, fmt.Errorf("deriving unvault transaction at index %d: %w", derivationIndex, err)
	}

	revaultTxIn, err := unvaultTx.RevaultUnvaultTxIn(derUnvault)
	if err != nil {
		return nil, err
	}
	cancelTx, err := NewCancelTransaction(revaultTxIn, nil, derDeposit, lockTime)
	if err != nil {
		return nil, fmt.Errorf("deriving cancel transaction at index %d: %w", derivationIndex, err)
	}

	return &TransactionChainManager{Unvault: unvaultTx, Cancel: cancelTx}, nil
}

// TransactionChain is the full stakeholder chain of pre-signed transactions out of a
// single deposit: Unvault, Cancel, Emergency, and UnvaultEmergency.
type TransactionChain struct {
	Unvault          *UnvaultTransaction
	Cancel           *CancelTransaction
	Emergency        *EmergencyTransaction
	UnvaultEmergency *UnvaultEmergencyTransaction
}

// NewTransactionChain extends NewTransactionChainManager with the two emergency
// transactions every stakeholder (but no manager) needs: an Emergency transaction
// spending the deposit straight to emerAddress, and an UnvaultEmergency transaction
// spending the derived Unvault output to the same address. Neither carries a feebump
// input.
func NewTransactionChain(depositOutpoint wire.OutPoint, depositAmount int64, depositDescriptor *scripts.DepositDescriptor, unvaultDescriptor *scripts.UnvaultDescriptor, cpfpDescriptor *scripts.CpfpDescriptor, derivationIndex uint32, emerAddress *scripts.EmergencyAddress, lockTime uint32, params *chaincfg.Params) (*TransactionChain, error) {
	manager, err := NewTransactionChainManager(depositOutpoint, depositAmount, depositDescriptor, unvaultDescriptor, cpfpDescriptor, derivationIndex, lockTime, params)
	if err != nil {
		return nil, err
	}

	derDeposit, err := depositDescriptor.Derive(derivationIndex, params)
	if err != nil {
		return nil, err
	}
	depositTxIn := txio.NewDepositTxIn(depositOutpoint, txio.NewDepositTxOut(depositAmount, derDeposit))
	emergencyTx, err := NewEmergencyTransaction(depositTxIn, nil, emerAddress, lockTime)
	if err != nil {
		return nil, fmt.Errorf("deriving emergency transaction at index %d: %w", derivationIndex, err)
	}

	derUnvault, err := unvaultDescriptor.Derive(derivationIndex, params)
	if err != nil {
		return nil, err
	}
	unvaultTxIn, err := manager.Unvault.RevaultUnvaultTxIn(derUnvault)
	if err != nil {
		return nil, err
	}
	unvaultEmergencyTx, err := NewUnvaultEmergencyTransaction(unvaultTxIn, nil, emerAddress, lockTime)
	if err != nil {
		return nil, fmt.Errorf("deriving unvault-emergency transaction at index %d: %w", derivationIndex, err)
	}

	return &TransactionChain{
		Unvault:          manager.Unvault,
		Cancel:           manager.Cancel,
		Emergency:        emergencyTx,
		UnvaultEmergency: unvaultEmergencyTx,
	}, nil
}

// DepositSource describes one deposit contributing to a Spend transaction: its
// outpoint, value, and derivation index (the descriptors are shared across all sources
// and derived per-source below).
type DepositSource struct {
	Outpoint        wire.OutPoint
	Amount          int64
	DerivationIndex uint32
}

// SpendTransactionFromDeposits builds a Spend transaction spending a set of deposits
// (each potentially at a different derivation index) straight through their Unvault
// outputs, without ever materializing the intermediate Unvault transactions for the
// caller. The CPFP descriptor is derived at the highest derivation index among the
// given deposits, mirroring the convention that later indices are assumed fresher.
func SpendTransactionFromDeposits(deposits []DepositSource, destinations []*txio.ExternalTxOut, change *txio.DepositTxOut, depositDescriptor *scripts.DepositDescriptor, unvaultDescriptor *scripts.UnvaultDescriptor, cpfpDescriptor *scripts.CpfpDescriptor, lockTime uint32, insaneFeeCheck bool, params *chaincfg.Params) (*SpendTransaction, error) {
	if len(deposits) == 0 {
		return nil, fmt.Errorf("%w: spend transaction needs at least one deposit", ErrTransactionCreation)
	}

	var maxIndex uint32
	unvaultIns := make([]*txio.UnvaultTxIn, 0, len(deposits))
	for _, d := range deposits {
		derDeposit, err := depositDescriptor.Derive(d.DerivationIndex, params)
		if err != nil {
			return nil, err
		}
		derUnvault, err := unvaultDescriptor.Derive(d.DerivationIndex, params)
		if err != nil {
			return nil, err
		}
		derCpfp, err := cpfpDescriptor.Derive(d.DerivationIndex, params)
		if err != nil {
			return nil, err
		}

		depositTxIn := txio.NewDepositTxIn(d.Outpoint, txio.NewDepositTxOut(d.Amount, derDeposit))
		unvaultTx, err := NewUnvaultTransaction(depositTxIn, derUnvault, derCpfp, lockTime)
		if err != nil {
			return nil, fmt.Errorf("deriving unvault transaction at index %d: %w", d.DerivationIndex, err)
		}
		unvaultTxIn, err := unvaultTx.SpendUnvaultTxIn(derUnvault)
		if err != nil {
			return nil, err
		}
		unvaultIns = append(unvaultIns, unvaultTxIn)

		if d.DerivationIndex > maxIndex {
			maxIndex = d.DerivationIndex
		}
	}

	derCpfp, err := cpfpDescriptor.Derive(maxIndex, params)
	if err != nil {
		return nil, err
	}
	return NewSpendTransaction(unvaultIns, destinations, change, derCpfp, lockTime, insaneFeeCheck)
}
