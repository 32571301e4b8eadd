package transactions

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// satisfyInput builds a final witness stack for a PSBT input from its recorded
// witness_script and partial_sigs, mirroring the role miniscript::psbt::finalize plays
// in the original. No Go Miniscript satisfier exists (the same gap the scripts
// package's hand-built compiler works around), so this dispatches over the three known
// compiled shapes this library ever produces: a deposit/cosigner/stakeholder AND-chain,
// a cpfp bare multisig, and the Unvault or(stakeholders, and(managers, cosigners, csv))
// script.
//
// An input whose shape is not one of these, or whose recorded signatures cannot satisfy
// it, yields an error rather than a witness.
func satisfyInput(pin *psbt.PInput) (wire.TxWitness, error) {
	if pin.WitnessScript == nil {
		return satisfyP2WPKH(pin)
	}
	return satisfyP2WSH(pin)
}

func satisfyP2WPKH(pin *psbt.PInput) (wire.TxWitness, error) {
	if len(pin.Bip32Derivation) != 1 {
		return nil, fmt.Errorf("p2wpkh input must carry exactly one bip32 derivation entry")
	}
	pubkey := pin.Bip32Derivation[0].PubKey
	sig, ok := findSigForPubkey(pin.PartialSigs, pubkey)
	if !ok {
		return nil, fmt.Errorf("no signature recorded for the feebump input's key")
	}
	return wire.TxWitness{sig, pubkey}, nil
}

func satisfyP2WSH(pin *psbt.PInput) (wire.TxWitness, error) {
	disasm, err := txscript.DisasmString(pin.WitnessScript)
	if err != nil {
		return nil, fmt.Errorf("disassembling witness script: %w", err)
	}
	ops := strings.Fields(disasm)
	if len(ops) == 0 {
		return nil, fmt.Errorf("empty witness script")
	}

	switch {
	case ops[0] == "OP_IF":
		return satisfyUnvaultShape(pin, ops)
	case ops[len(ops)-1] == "OP_CHECKMULTISIG":
		return satisfyBareMultisig(pin, ops)
	default:
		return satisfySequentialChain(pin, ops)
	}
}

// hexToken decodes a disassembled data-push token into raw bytes; txscript.DisasmString
// renders pushes as plain lowercase hex.
func hexToken(tok string) ([]byte, bool) {
	b, err := hex.DecodeString(tok)
	if err != nil {
		return nil, false
	}
	return b, true
}

func findSigForPubkey(sigs []*psbt.PartialSig, pubkey []byte) ([]byte, bool) {
	for _, s := range sigs {
		if hexEqual(s.PubKey, pubkey) {
			return s.Signature, true
		}
	}
	return nil, false
}

func hexEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// chainPubkeys walks a sequential <pubkey> OP_CHECKSIG(VERIFY) [OP_ADD] ... chain
// starting at ops[start], stopping at the first token that isn't a pubkey push,
// returning the pubkeys in script order and the index just past the chain.
func chainPubkeys(ops []string, start int) (pubkeys [][]byte, next int) {
	i := start
	for i < len(ops) {
		pk, ok := hexToken(ops[i])
		if !ok || len(pk) != 33 {
			break
		}
		pubkeys = append(pubkeys, pk)
		i++
		if i >= len(ops) || (ops[i] != "OP_CHECKSIG" && ops[i] != "OP_CHECKSIGVERIFY") {
			break
		}
		i++
		if i < len(ops) && ops[i] == "OP_ADD" {
			i++
		}
	}
	return pubkeys, i
}

// parseThresholdBranch parses a clause of the Unvault script's manager or cosigner
// branch starting at ops[start]: either a pure AND-chain (appendANDChain, every pubkey
// followed by OP_CHECKSIGVERIFY) or a general k-of-n threshold (appendThreshold,
// pubkeys summed via bare OP_CHECKSIG/OP_ADD then compared against a pushed threshold
// via OP_EQUALVERIFY). Returns the pubkeys in script order, the branch's required
// threshold, and the index just past the clause.
func parseThresholdBranch(ops []string, start int) (pubkeys [][]byte, threshold int, next int, err error) {
	pubkeys, next = chainPubkeys(ops, start)
	if len(pubkeys) == 0 {
		return nil, 0, 0, fmt.Errorf("unrecognized threshold clause")
	}
	if ops[start+1] == "OP_CHECKSIGVERIFY" {
		return pubkeys, len(pubkeys), next, nil
	}
	// General k-of-n form: <threshold> OP_EQUALVERIFY (or OP_EQUAL at the tail end of
	// the script) immediately follows the summed CHECKSIG/OP_ADD chain.
	if next+1 >= len(ops) || (ops[next+1] != "OP_EQUALVERIFY" && ops[next+1] != "OP_EQUAL") {
		return nil, 0, 0, fmt.Errorf("malformed threshold clause: expected OP_EQUAL(VERIFY) after the summed chain")
	}
	t, err := parseSmallInt(ops[next])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("malformed threshold clause: %w", err)
	}
	return pubkeys, t, next + 2, nil
}

// satisfySequentialChain satisfies a deposit-style or cosigner-style AND-chain (every
// key must sign), appending the pop-ordered signatures followed by the witness script.
func satisfySequentialChain(pin *psbt.PInput, ops []string) (wire.TxWitness, error) {
	pubkeys, _ := chainPubkeys(ops, 0)
	if len(pubkeys) == 0 {
		return nil, fmt.Errorf("unrecognized witness script shape")
	}
	popSeq, err := requireAllSigs(pin.PartialSigs, pubkeys)
	if err != nil {
		return nil, err
	}
	return finishWitness(popSeq, pin.WitnessScript), nil
}

// satisfyBareMultisig satisfies a standard OP_CHECKMULTISIG: a leading OP_0 dummy
// element plus exactly the required number of signatures, in pubkey order.
func satisfyBareMultisig(pin *psbt.PInput, ops []string) (wire.TxWitness, error) {
	threshold, err := parseSmallInt(ops[0])
	if err != nil {
		return nil, fmt.Errorf("bare multisig: %w", err)
	}
	var pubkeys [][]byte
	for i := 1; i < len(ops)-2; i++ {
		pk, ok := hexToken(ops[i])
		if !ok || len(pk) != 33 {
			continue
		}
		pubkeys = append(pubkeys, pk)
	}
	var witness wire.TxWitness
	witness = append(witness, []byte{}) // OP_CHECKMULTISIG off-by-one dummy
	found := 0
	for _, pk := range pubkeys {
		if sig, ok := findSigForPubkey(pin.PartialSigs, pk); ok {
			witness = append(witness, sig)
			found++
			if found == threshold {
				break
			}
		}
	}
	if found < threshold {
		return nil, fmt.Errorf("bare multisig: only %d of %d required signatures available", found, threshold)
	}
	witness = append(witness, pin.WitnessScript)
	return witness, nil
}

// satisfyUnvaultShape satisfies or(1@thresh(stakeholders), 9@and(thresh(managers),
// and(thresh(cosigners), older(csv)))): the selector byte (non-empty to take the manager/IF branch, empty for the
// stakeholder/ELSE branch) is chosen by which branch this input's recorded signatures
// actually satisfy, preferring the manager branch when both are available.
func satisfyUnvaultShape(pin *psbt.PInput, ops []string) (wire.TxWitness, error) {
	// ops[0] == "OP_IF"; the manager clause starts at ops[1].
	managerPubkeys, managerThreshold, next, err := parseThresholdBranch(ops, 1)
	if err != nil {
		return nil, fmt.Errorf("unvault script: manager branch: %w", err)
	}
	// An all-managers-required clause is an OP_CHECKSIGVERIFY chain that runs straight
	// into the cosigner chain, so chainPubkeys has already taken the cosigner keys (all
	// of them required too) along with the managers'; only a k-of-n clause leaves them.
	var cosignerPubkeys [][]byte
	if managerThreshold < len(managerPubkeys) {
		cosignerPubkeys, _, _, err = parseThresholdBranch(ops, next)
		if err != nil {
			return nil, fmt.Errorf("unvault script: cosigner branch: %w", err)
		}
	}

	elseIdx := indexOf(ops, "OP_ELSE")
	if elseIdx < 0 {
		return nil, fmt.Errorf("unvault script: missing OP_ELSE")
	}
	stakeholderPubkeys, _ := chainPubkeys(ops, elseIdx+1)
	if len(stakeholderPubkeys) == 0 {
		return nil, fmt.Errorf("unvault script: missing stakeholder branch")
	}

	// Prefer the manager/cosigner branch (the common, non-revocation path) whenever
	// this input's partial_sigs can satisfy it.
	if managerSeq, err := requireThresholdSigs(pin.PartialSigs, managerPubkeys, managerThreshold); err == nil {
		if cosignerSeq, err := requireAllSigs(pin.PartialSigs, cosignerPubkeys); err == nil {
			popSeq := append(append([][]byte{}, managerSeq...), cosignerSeq...)
			popSeq = append([][]byte{[]byte{0x01}}, popSeq...)
			return finishWitness(popSeq, pin.WitnessScript), nil
		}
	}

	stakeholderSeq, err := requireAllSigs(pin.PartialSigs, stakeholderPubkeys)
	if err != nil {
		return nil, fmt.Errorf("neither the manager nor the stakeholder branch can be satisfied: %w", err)
	}
	popSeq := append([][]byte{[]byte{}}, stakeholderSeq...)
	return finishWitness(popSeq, pin.WitnessScript), nil
}

// requireAllSigs returns the pop-ordered (script order) signatures for every pubkey,
// erroring if any is missing.
func requireAllSigs(sigs []*psbt.PartialSig, pubkeys [][]byte) ([][]byte, error) {
	out := make([][]byte, len(pubkeys))
	for i, pk := range pubkeys {
		sig, ok := findSigForPubkey(sigs, pk)
		if !ok {
			return nil, fmt.Errorf("missing signature for key %x", pk)
		}
		out[i] = sig
	}
	return out, nil
}

// requireThresholdSigs returns pop-ordered items for a k-of-n chain: a real signature
// where available, an empty placeholder otherwise, erroring if fewer than threshold
// real signatures are present.
func requireThresholdSigs(sigs []*psbt.PartialSig, pubkeys [][]byte, threshold int) ([][]byte, error) {
	out := make([][]byte, len(pubkeys))
	found := 0
	for i, pk := range pubkeys {
		if sig, ok := findSigForPubkey(sigs, pk); ok {
			out[i] = sig
			found++
		} else {
			out[i] = []byte{}
		}
	}
	if found < threshold {
		return nil, fmt.Errorf("only %d of %d required signatures available", found, threshold)
	}
	return out, nil
}

// finishWitness reverses a pop-ordered (script execution order) signature sequence into
// witness-array order and appends the witness script, per BIP-141/143 stack semantics.
func finishWitness(popSeq [][]byte, witnessScript []byte) wire.TxWitness {
	out := make(wire.TxWitness, 0, len(popSeq)+1)
	for i := len(popSeq) - 1; i >= 0; i-- {
		out = append(out, popSeq[i])
	}
	out = append(out, witnessScript)
	return out
}

// parseSmallInt parses a disassembled small-integer push (txscript.DisasmString
// renders OP_0 through OP_16 as a bare decimal).
func parseSmallInt(tok string) (int, error) {
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("not a small integer token: %q", tok)
	}
	return n, nil
}

func indexOf(ops []string, tok string) int {
	for i, o := range ops {
		if o == tok {
			return i
		}
	}
	return -1
}
