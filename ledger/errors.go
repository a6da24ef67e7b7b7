/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match on the sentinels with errors.Is and pull details out of
  the structured errors with errors.As.

ERROR CATEGORIES:
  1. Validation errors - rejected input, no state change
  2. Not-found errors - an account id did not resolve
  3. Persistence warnings - load/save trouble, logged but never rolled back

SEE ALSO:
  - validate.go: produces ValidationError
  - engine.go: produces NotFoundError, logs PersistenceWarning
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateHolder is matched by the ValidationError raised when a
	// holder name is already taken.
	ErrDuplicateHolder = errors.New("account holder already exists")

	// ErrAccountNotFound is matched by every NotFoundError.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoSnapshot is returned by a Persister when nothing has been stored yet.
	ErrNoSnapshot = errors.New("no stored ledger")

	// ErrCorruptSnapshot is wrapped by a Persister when stored content cannot
	// be decoded.
	ErrCorruptSnapshot = errors.New("stored ledger is corrupt")

	// ErrIDSpaceExhausted is returned when every ACC-#### id is taken.
	ErrIDSpaceExhausted = errors.New("no free account ids left")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationCode identifies which rule rejected an input.
type ValidationCode string

const (
	CodeRequired          ValidationCode = "required"
	CodeTooLong           ValidationCode = "too_long"
	CodeInvalidCharacters ValidationCode = "invalid_characters"
	CodeDuplicate         ValidationCode = "duplicate"
	CodeInvalidNumber     ValidationCode = "invalid_number"
	CodeTooManyDecimals   ValidationCode = "too_many_decimals"
	CodeTooLow            ValidationCode = "too_low"
	CodeTooHigh           ValidationCode = "too_high"
)

// ValidationError reports the first rule an input violated.
type ValidationError struct {
	Field   string // "holder_name", "deposit", "amount"
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.Code == CodeDuplicate {
		return []error{ErrValidation, ErrDuplicateHolder}
	}
	return []error{ErrValidation}
}

// Account roles used in NotFoundError.
const (
	RoleAccount = "account"
	RoleSource  = "source"
)

// NotFoundError reports an account id that did not resolve.
type NotFoundError struct {
	AccountID string
	Role      string
}

func (e *NotFoundError) Error() string {
	if e.Role == RoleSource {
		return fmt.Sprintf("source account %q not found", e.AccountID)
	}
	return fmt.Sprintf("account %q not found", e.AccountID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrAccountNotFound
}

// PersistenceWarning wraps a load or save failure. It is logged, never
// returned from a mutating operation: memory stays the source of truth.
type PersistenceWarning struct {
	Op  string // "load" or "save"
	Err error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceWarning) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid operator input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrAccountNotFound)
}

// IsNotFound returns true if the error indicates a missing account.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
