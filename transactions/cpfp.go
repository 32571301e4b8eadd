package transactions

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/revault/revault-tx/txio"
)

// opReturnDummyData pads a single-input single-output CPFP transaction's OP_RETURN
// output so the overall transaction clears Bitcoin Core's minimum standard size; a
// multi-input CPFP transaction is already big enough and uses a bare OP_RETURN.
var opReturnDummyData = make([]byte, 22)

// CpfpTransaction spends one or more Unvault/Spend CPFP outputs in order to bump their
// package feerate up to a target, paying either a change output back to the same
// script or an OP_RETURN if the leftover is too small to bother with.
type CpfpTransaction struct {
	base
}

// NewCpfpTransaction builds a CPFP transaction covering toBeCpfped (the CPFP outputs
// actually being bumped; tbcWeight and tbcFees describe the package they belong to) at
// tbcFeerate+addedFeerate sat/kWU, selecting from availableUtxos largest-first until
// the target feerate is reached.
func NewCpfpTransaction(toBeCpfped []*txio.CpfpTxIn, tbcWeight uint64, tbcFees uint64, addedFeerate uint64, availableUtxos []*txio.CpfpTxIn) (*CpfpTransaction, error) {
	if len(toBeCpfped) == 0 {
		return nil, fmt.Errorf("%w: at least one CPFP output to bump must be given", ErrTransactionCreation)
	}

	available := make([]*txio.CpfpTxIn, len(availableUtxos))
	copy(available, availableUtxos)
	sort.Slice(available, func(i, j int) bool {
		return available[i].TxOut.TxOut.Value < available[j].TxOut.TxOut.Value
	})

	var ins []*txio.CpfpTxIn
	ins = append(ins, toBeCpfped...)

	var inputsSum uint64
	var satisfactionWeight uint64
	var dummyChange *wire.TxOut
	for _, in := range toBeCpfped {
		dummyChange = in.TxOut.TxOut
		inputsSum += uint64(in.TxOut.TxOut.Value)
		satisfactionWeight += uint64(in.TxOut.MaxSatWeight())
	}

	tbcFeerate := 1000 * (tbcFees + tbcWeight) / tbcWeight
	targetFeerate := tbcFeerate + addedFeerate

	for {
		tx := wire.NewMsgTx(TxVersion)
		for _, in := range ins {
			tx.TxIn = append(tx.TxIn, in.UnsignedTxIn())
		}
		tx.TxOut = []*wire.TxOut{wire.NewTxOut(dummyChange.Value, dummyChange.PkScript)}

		cpfpWeight := uint64(txWeight(tx))
		packageWeight := cpfpWeight + satisfactionWeight + tbcWeight
		feesNeeded := targetFeerate*packageWeight/1000 - tbcFees

		opReturnTx := tx.Copy()
		opReturnTx.TxOut[0].PkScript = opReturnScript(len(ins))
		opReturnTx.TxOut[0].Value = 0
		oprWeight := uint64(txWeight(opReturnTx))
		oprPackageWeight := oprWeight + satisfactionWeight + tbcWeight
		oprFeesNeeded := targetFeerate*oprPackageWeight/1000 - tbcFees

		if inputsSum > feesNeeded || inputsSum > oprFeesNeeded {
			if inputsSum > feesNeeded && inputsSum-feesNeeded > CPFPMinChange {
				tx.TxOut[0].Value = int64(inputsSum - feesNeeded)
			} else {
				tx.TxOut[0].Value = 0
				tx.TxOut[0].PkScript = opReturnScript(len(ins))
			}

			packet, err := psbt.NewFromUnsignedTx(tx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransactionCreation, err)
			}
			for i, in := range ins {
				packet.Inputs[i].WitnessScript = in.TxOut.WitnessScript()
				packet.Inputs[i].Bip32Derivation = in.TxOut.Bip32Derivation()
				packet.Inputs[i].SighashType = txscript.SigHashAll
				packet.Inputs[i].WitnessUtxo = in.TxOut.TxOut
			}
			return &CpfpTransaction{base: newBase(packet)}, nil
		}

		if len(available) == 0 {
			return nil, ErrInsufficientFunds
		}
		newInput := available[len(available)-1]
		available = available[:len(available)-1]

		ins = append(ins, newInput)
		inputsSum += uint64(newInput.TxOut.TxOut.Value)
		satisfactionWeight += uint64(newInput.TxOut.MaxSatWeight())
	}
}

// opReturnScript returns the CPFP transaction's change-output fallback script: a bare
// OP_RETURN once there are 2+ inputs (already above minimum standard size), padded with
// 22 dummy bytes for the 1-input case so the transaction clears it on its own.
func opReturnScript(numInputs int) []byte {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_RETURN)
	if numInputs <= 1 {
		b.AddData(opReturnDummyData)
	}
	script, err := b.Script()
	if err != nil {
		panic(fmt.Sprintf("transactions: building a fixed-shape OP_RETURN script: %v", err))
	}
	return script
}
