package credentials

import "errors"

// Invalid-input errors are non-retryable and signal a caller defect; transient
// ledger or multisig failures are wrapped and propagate to the caller instead.
var (
	// ErrInvalidInput marks malformed identifiers, unsupported credential
	// kinds, empty descriptor batches, and unmatched subjects or templates.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing durable record.
	ErrNotFound = errors.New("not found")

	// ErrSigningKeyUnavailable marks a direct-issuance attempt on a chain
	// with no signing key configured.
	ErrSigningKeyUnavailable = errors.New("signing key unavailable")
)
