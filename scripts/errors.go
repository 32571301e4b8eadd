package scripts

import "errors"

// Sentinel errors for the script-creation error kind (spec "ScriptCreation"). Every
// failure returned by this package wraps one of these via fmt.Errorf("%w: ...", ...)
// so callers can branch with errors.Is.
var (
	// ErrBadParameters covers malformed participant-set shapes: too few stakeholders,
	// a cosigner-count mismatch, an out-of-range manager threshold, or forbidden CSV bits.
	ErrBadParameters = errors.New("scripts: bad parameters")

	// ErrNonWildcardKeys is returned when a generic Deposit/CPFP descriptor is handed a
	// key that is not an unhardened-wildcard xpub.
	ErrNonWildcardKeys = errors.New("scripts: non-wildcard key in generic descriptor")

	// ErrNoXPub is returned when a generic Unvault descriptor contains no xpub at all
	// (i.e. every key, including stakeholders/managers, was a single fixed pubkey).
	ErrNoXPub = errors.New("scripts: unvault descriptor carries no xpub")

	// ErrLimitsExceeded is returned when the compiled witness script would exceed the
	// policy compiler's resource limits.
	ErrLimitsExceeded = errors.New("scripts: policy compiler limits exceeded")

	// ErrMalformedDescriptor is returned when introspecting a compiled Unvault script
	// (csv_value, managers_threshold) that does not have the expected shape. Per the
	// spec's Open Questions, this is an error and never a panic: the input may be a
	// hostile counterparty-supplied PSBT.
	ErrMalformedDescriptor = errors.New("scripts: malformed unvault descriptor")
)
