package scripts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/revault/revault-tx/keys"
)

// UnvaultDescriptor is the generic flavor of:
//
//	or(1@thresh(n_s, stakeholders), 9@and(thresh(t, managers), and(thresh(n_c, cosigners), older(csv))))
type UnvaultDescriptor struct {
	Stakeholders      []keys.GenericKey
	Managers          []keys.GenericKey
	ManagersThreshold int
	Cosigners         []keys.GenericKey
	CSV               uint32
}

// NewUnvaultDescriptor validates the participant sets, the manager threshold, and the
// CSV value, and checks that every stakeholder/manager key is a wildcard xpub (cosigner
// keys may be fixed single pubkeys).
func NewUnvaultDescriptor(stakeholders, managers []keys.GenericKey, managersThreshold int, cosigners []keys.GenericKey, csv uint32) (*UnvaultDescriptor, error) {
	if len(stakeholders) < 1 {
		return nil, fmt.Errorf("%w: unvault descriptor requires at least 1 stakeholder", ErrBadParameters)
	}
	if len(managers) < 1 {
		return nil, fmt.Errorf("%w: unvault descriptor requires at least 1 manager", ErrBadParameters)
	}
	if len(cosigners) != len(stakeholders) {
		return nil, fmt.Errorf("%w: cosigner count %d must equal stakeholder count %d", ErrBadParameters, len(cosigners), len(stakeholders))
	}
	if managersThreshold < 1 || managersThreshold > len(managers) {
		return nil, fmt.Errorf("%w: manager threshold %d out of range [1, %d]", ErrBadParameters, managersThreshold, len(managers))
	}
	if err := validateCSV(csv); err != nil {
		return nil, err
	}
	if err := requireWildcard(stakeholders); err != nil {
		return nil, err
	}
	if err := requireWildcard(managers); err != nil {
		return nil, err
	}
	return &UnvaultDescriptor{
		Stakeholders:      stakeholders,
		Managers:          managers,
		ManagersThreshold: managersThreshold,
		Cosigners:         cosigners,
		CSV:               csv,
	}, nil
}

// String renders a canonical descriptor string carrying every parameter needed to
// round-trip: stakeholders, managers (with threshold), cosigners, and csv.
func (d *UnvaultDescriptor) String() string {
	stakeTok := make([]string, len(d.Stakeholders))
	for i, k := range d.Stakeholders {
		stakeTok[i] = formatGenericKey(k)
	}
	manTok := make([]string, len(d.Managers))
	for i, k := range d.Managers {
		manTok[i] = formatGenericKey(k)
	}
	cosigTok := make([]string, len(d.Cosigners))
	for i, k := range d.Cosigners {
		cosigTok[i] = formatGenericKey(k)
	}
	return fmt.Sprintf("unvault(stake(%s),man(%d,%s),cosig(%s),csv(%d))",
		strings.Join(stakeTok, ","), d.ManagersThreshold, strings.Join(manTok, ","),
		strings.Join(cosigTok, ","), d.CSV)
}

// ParseUnvaultDescriptor parses the canonical string form produced by String.
//
// It additionally enforces the deserialization invariant spec.md §4.2 describes: at
// least one xpub must be present among all the keys, rejecting a fully-static variant
// built entirely from fixed single pubkeys.
func ParseUnvaultDescriptor(s string) (*UnvaultDescriptor, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "unvault(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("%w: not an unvault() descriptor string", ErrBadParameters)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "unvault("), ")")

	stakeSection, rest, err := cutSection(body, "stake(")
	if err != nil {
		return nil, err
	}
	manSection, rest, err := cutSection(rest, "man(")
	if err != nil {
		return nil, err
	}
	cosigSection, rest, err := cutSection(rest, "cosig(")
	if err != nil {
		return nil, err
	}
	csvSection, _, err := cutSection(rest, "csv(")
	if err != nil {
		return nil, err
	}

	stakeholders, err := parseGenericKeyList(stakeSection)
	if err != nil {
		return nil, err
	}

	manParts := strings.SplitN(manSection, ",", 2)
	if len(manParts) != 2 {
		return nil, fmt.Errorf("%w: malformed man() section %q", ErrBadParameters, manSection)
	}
	threshold, err := strconv.Atoi(manParts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad manager threshold %q: %v", ErrBadParameters, manParts[0], err)
	}
	managers, err := parseGenericKeyList(manParts[1])
	if err != nil {
		return nil, err
	}

	cosigners, err := parseGenericKeyList(cosigSection)
	if err != nil {
		return nil, err
	}

	csv, err := strconv.ParseUint(csvSection, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad csv %q: %v", ErrBadParameters, csvSection, err)
	}

	if !hasAnyWildcard(stakeholders) && !hasAnyWildcard(managers) && !hasAnyWildcard(cosigners) {
		return nil, ErrNoXPub
	}

	return NewUnvaultDescriptor(stakeholders, managers, threshold, cosigners, uint32(csv))
}

func cutSection(s, marker string) (section, rest string, err error) {
	idx := strings.Index(s, marker)
	if idx < 0 {
		return "", "", fmt.Errorf("%w: missing %q section", ErrBadParameters, strings.TrimSuffix(marker, "("))
	}
	depth := 0
	start := idx + len(marker)
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return s[start:i], s[i+1:], nil
			}
			depth--
		}
	}
	return "", "", fmt.Errorf("%w: unterminated %q section", ErrBadParameters, marker)
}

func parseGenericKeyList(s string) ([]keys.GenericKey, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	toks := strings.Split(s, ",")
	out := make([]keys.GenericKey, len(toks))
	for i, tok := range toks {
		tok = strings.TrimPrefix(tok, ",")
		k, err := parseGenericKey(tok)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

// Derive descends every stakeholder/manager xpub to child index i, and passes cosigner
// keys through unchanged (they are fixed, non-wildcard keys).
func (d *UnvaultDescriptor) Derive(index uint32, params *chaincfg.Params) (*DerivedUnvaultDescriptor, error) {
	stakeholders := make([]*keys.DerivedPublicKey, len(d.Stakeholders))
	for i, k := range d.Stakeholders {
		dk, err := k.Derive(index, nil)
		if err != nil {
			return nil, fmt.Errorf("deriving stakeholder %d: %w", i, err)
		}
		stakeholders[i] = dk
	}
	managers := make([]*keys.DerivedPublicKey, len(d.Managers))
	for i, k := range d.Managers {
		dk, err := k.Derive(index, nil)
		if err != nil {
			return nil, fmt.Errorf("deriving manager %d: %w", i, err)
		}
		managers[i] = dk
	}
	cosigners := make([]*keys.DerivedPublicKey, len(d.Cosigners))
	for i, k := range d.Cosigners {
		dk, err := k.Derive(index, nil)
		if err != nil {
			return nil, fmt.Errorf("deriving cosigner %d: %w", i, err)
		}
		cosigners[i] = dk
	}
	return newDerivedUnvaultDescriptor(stakeholders, managers, d.ManagersThreshold, cosigners, d.CSV, params)
}

// DerivedUnvaultDescriptor is the concrete-key flavor of an Unvault descriptor.
type DerivedUnvaultDescriptor struct {
	Stakeholders      []*keys.DerivedPublicKey
	Managers          []*keys.DerivedPublicKey
	ManagersThreshold int
	Cosigners         []*keys.DerivedPublicKey
	CSV               uint32
	WitnessScript     []byte
	ScriptPubKey      []byte
	Address           btcutil.Address
}

func newDerivedUnvaultDescriptor(stakeholders, managers []*keys.DerivedPublicKey, managersThreshold int, cosigners []*keys.DerivedPublicKey, csv uint32, params *chaincfg.Params) (*DerivedUnvaultDescriptor, error) {
	toRaw := func(ks []*keys.DerivedPublicKey) [][]byte {
		out := make([][]byte, len(ks))
		for i, k := range ks {
			out[i] = k.Key.SerializeCompressed()
		}
		return out
	}
	witnessScript, err := buildUnvaultScript(toRaw(stakeholders), toRaw(managers), managersThreshold, toRaw(cosigners), csv)
	if err != nil {
		return nil, err
	}
	spk, addr, err := p2wshFromWitnessScript(witnessScript, params)
	if err != nil {
		return nil, err
	}
	return &DerivedUnvaultDescriptor{
		Stakeholders:      stakeholders,
		Managers:          managers,
		ManagersThreshold: managersThreshold,
		Cosigners:         cosigners,
		CSV:               csv,
		WitnessScript:     witnessScript,
		ScriptPubKey:      spk,
		Address:           addr,
	}, nil
}

// CSVValue returns the descriptor's own recorded CSV value (constant time — no script
// walking needed when the descriptor was built, not merely parsed from a raw script).
func (d *DerivedUnvaultDescriptor) CSVValue() uint32 {
	return d.CSV
}

// ManagersThresholdValue returns Some(t) if the descriptor requires exactly t-of-n
// managers with t < n, or None (nil) if all managers are required.
func (d *DerivedUnvaultDescriptor) ManagersThresholdValue() *int {
	if d.ManagersThreshold == len(d.Managers) {
		return nil
	}
	t := d.ManagersThreshold
	return &t
}

// CSVFromWitnessScript walks a compiled Unvault witness script (e.g. one recovered from
// an untrusted PSBT rather than built by this package) and extracts its CSV value.
// Returns ErrMalformedDescriptor instead of panicking on any unrecognized shape, per
// the Open Question resolution in DESIGN.md.
func CSVFromWitnessScript(witnessScript []byte) (uint32, error) {
	ops, instrs, err := disassembleForIntrospection(witnessScript)
	if err != nil {
		return 0, err
	}
	for i, op := range ops {
		if op == "OP_CHECKSEQUENCEVERIFY" {
			if i == 0 {
				return 0, fmt.Errorf("%w: CSV opcode has no preceding push", ErrMalformedDescriptor)
			}
			v, err := scriptNumAt(instrs, i-1)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: no OP_CHECKSEQUENCEVERIFY found", ErrMalformedDescriptor)
}

// ManagersThresholdFromWitnessScript walks a compiled Unvault witness script and
// extracts the manager threshold, mirroring UnvaultDescriptor.managers_threshold() in
// the original: it returns (threshold, true) if the manager clause is a genuine k-of-n
// with k < n, or (0, false) if every manager is required (the clause compiled to an
// AND-chain and carries no explicit threshold push to recover). Returns
// ErrMalformedDescriptor instead of panicking on any unrecognized shape, per the Open
// Question resolution in DESIGN.md (the Rust original unreachable!()s here).
func ManagersThresholdFromWitnessScript(witnessScript []byte) (threshold int, ok bool, err error) {
	ops, instrs, err := disassembleForIntrospection(witnessScript)
	if err != nil {
		return 0, false, err
	}
	if len(ops) == 0 || ops[0] != "OP_IF" {
		return 0, false, fmt.Errorf("%w: script does not start with the manager/stakeholder OP_IF branch", ErrMalformedDescriptor)
	}

	// A general k-of-n manager clause ends in "<k> OP_EQUALVERIFY"; an AND-chain (every
	// manager required) has no OP_ADD/OP_EQUALVERIFY at all before the cosigner clause's
	// own OP_CHECKSEQUENCEVERIFY boundary.
	for i := 1; i < len(ops); i++ {
		switch ops[i] {
		case "OP_EQUALVERIFY":
			if i == 0 {
				return 0, false, fmt.Errorf("%w: EQUALVERIFY with no preceding threshold push", ErrMalformedDescriptor)
			}
			t, err := scriptNumAt(instrs, i-1)
			if err != nil {
				return 0, false, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
			}
			return int(t), true, nil
		case "OP_CHECKSEQUENCEVERIFY":
			return 0, false, nil
		}
	}
	return 0, false, fmt.Errorf("%w: manager clause boundary not found", ErrMalformedDescriptor)
}

// scriptInstr is a single parsed script instruction: its raw opcode byte, and (for a
// data-push opcode) the bytes it pushes.
type scriptInstr struct {
	opcode byte
	data   []byte
}

// disassembleForIntrospection returns both a human-readable token for each instruction
// (via txscript.DisasmString, used only to locate unambiguous opcode landmarks like
// OP_CHECKSEQUENCEVERIFY by name) and the same instructions' raw opcode/data pairs (via
// txscript.ScriptTokenizer, used to decode the CScriptNum a landmark's preceding token
// carries). The two slices are index-aligned: DisasmString emits exactly one field per
// script instruction, in the same order the tokenizer walks them.
func disassembleForIntrospection(witnessScript []byte) (ops []string, instrs []scriptInstr, err error) {
	tokens, err := txscript.DisasmString(witnessScript)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: disassembling script: %v", ErrMalformedDescriptor, err)
	}
	ops = strings.Fields(tokens)

	tokenizer := txscript.MakeScriptTokenizer(0, witnessScript)
	for tokenizer.Next() {
		instrs = append(instrs, scriptInstr{opcode: tokenizer.Opcode(), data: tokenizer.Data()})
	}
	if tokenizer.Err() != nil {
		return nil, nil, fmt.Errorf("%w: tokenizing script: %v", ErrMalformedDescriptor, tokenizer.Err())
	}
	if len(ops) != len(instrs) {
		return nil, nil, fmt.Errorf("%w: disassembly and tokenization disagree on instruction count", ErrMalformedDescriptor)
	}
	return ops, instrs, nil
}

// scriptNumAt decodes the CScriptNum pushed by the instruction at instrs[idx] directly
// from its opcode/data, rather than from its disassembled text: a small-int opcode
// (OP_0..OP_16) and a data push whose bytes happen to render as an all-digit hex string
// are textually indistinguishable (both "11" could be OP_11 or the single data byte
// 0x11), so only the raw opcode can tell them apart. Multi-byte pushes are accumulated
// little-endian; a push whose most-significant (last) byte has the sign bit set is
// rejected as negative.
func scriptNumAt(instrs []scriptInstr, idx int) (uint32, error) {
	if idx < 0 || idx >= len(instrs) {
		return 0, fmt.Errorf("script number index %d out of range", idx)
	}
	instr := instrs[idx]
	switch {
	case instr.opcode == txscript.OP_0:
		return 0, nil
	case instr.opcode >= txscript.OP_1 && instr.opcode <= txscript.OP_16:
		return uint32(instr.opcode-txscript.OP_1) + 1, nil
	}
	raw := instr.data
	if len(raw) == 0 {
		return 0, fmt.Errorf("opcode %#x is not a small-int opcode or a data push", instr.opcode)
	}
	var v uint32
	for i, b := range raw {
		if i == len(raw)-1 {
			if b&0x80 != 0 {
				return 0, fmt.Errorf("unexpected negative script number")
			}
			v |= uint32(b) << (8 * i)
			break
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}
