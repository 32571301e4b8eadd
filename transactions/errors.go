package transactions

import "fmt"

// ErrTransactionCreation is wrapped by every error raised while building a transaction's
// unsigned PSBT skeleton: dust outputs, insane fees, overflowed amounts.
var ErrTransactionCreation = fmt.Errorf("transaction creation error")

// ErrPsbtValidation is wrapped by every error raised while checking a PSBT's static
// shape against what a given transaction type requires (input/output counts, missing
// witness_utxo, mismatched descriptors).
var ErrPsbtValidation = fmt.Errorf("psbt validation error")

// ErrInputSatisfaction is wrapped by every error raised while computing a sighash or
// adding a signature to an input: out-of-bounds index, missing witness script, already
// finalized, or an invalid signature.
var ErrInputSatisfaction = fmt.Errorf("input satisfaction error")

// ErrTransactionSerialization is wrapped by every error raised while
// serializing/deserializing a PSBT to/from its binary or base64 form.
var ErrTransactionSerialization = fmt.Errorf("transaction serialization error")

// ErrFinalization is wrapped by every error raised while finalizing a PSBT input or
// running the consensus script-verification oracle over a finalized transaction.
var ErrFinalization = fmt.Errorf("finalization error")

// Dust-specific and amount-specific creation errors, distinguished so callers can branch
// on errors.Is without string-matching.
var (
	ErrDust            = fmt.Errorf("%w: output value below dust limit", ErrTransactionCreation)
	ErrInsaneFees      = fmt.Errorf("%w: fee exceeds sanity ceiling", ErrTransactionCreation)
	ErrInsaneAmounts   = fmt.Errorf("%w: output value exceeds max money", ErrTransactionCreation)
	ErrInsufficientFunds = fmt.Errorf("%w: available UTXOs cannot cover the target feerate", ErrTransactionCreation)
)

// Input-satisfaction-specific errors.
var (
	ErrOutOfBounds           = fmt.Errorf("%w: input index out of bounds", ErrInputSatisfaction)
	ErrMissingWitnessScript  = fmt.Errorf("%w: psbt input has no witness script", ErrInputSatisfaction)
	ErrAlreadyFinalized      = fmt.Errorf("%w: psbt input is already finalized", ErrInputSatisfaction)
	ErrInvalidSignature      = fmt.Errorf("%w: signature does not verify against the input's sighash", ErrInputSatisfaction)
)
