// Domain errors for the account and transaction engine. These are business
// outcomes, not system faults; the handler layer maps each to an HTTP status.
package engine

import "errors"

var (
	// ErrAuth covers bad credentials and missing admin role.
	ErrAuth = errors.New("authentication failed")

	// ErrValidation covers malformed amounts, PINs and limit values.
	ErrValidation = errors.New("validation failed")

	// ErrLimitExceeded means the withdrawal breaks the per-transaction or
	// daily cap.
	ErrLimitExceeded = errors.New("withdrawal limit exceeded")

	// ErrInsufficientFunds means the balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound means the account does not exist.
	ErrNotFound = errors.New("account not found")

	// ErrAccountLocked means too many failed PIN attempts.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountClosed means the account was closed by an administrator.
	ErrAccountClosed = errors.New("account closed")

	// ErrPersistence means the storage write failed; the engine refuses to
	// commit in-memory-only balance changes.
	ErrPersistence = errors.New("persistence failure")

	// ErrDuplicate means the account id is already provisioned.
	ErrDuplicate = errors.New("account already exists")
)
