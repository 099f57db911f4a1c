/*
errors.go - Centralized error types for the HR engine

ERROR CATEGORIES:
  1. Validation errors - user input violates a business rule
  2. State errors - operation attempted in the wrong lifecycle state
  3. Store errors - not found, conflicts, duplicate keys
  4. Authorization - actor may not perform the operation

  Anything else is treated as a transient IO failure: logged, surfaced as a
  generic failure and never retried automatically.

USAGE:
    if errors.Is(err, generic.ErrValidation) {
        // 400
    }

    var se *generic.StateError
    if errors.As(err, &se) {
        log.Printf("absence %s is %s", se.ID, se.Status)
    }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks a business rule violation in user input.
	ErrValidation = errors.New("validation failed")

	// ErrState marks an operation against a record in the wrong lifecycle state.
	ErrState = errors.New("invalid state transition")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrConcurrentModification is returned when a compare-and-swap write
	// found the record changed underneath it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateKey is returned when a unique key already exists.
	ErrDuplicateKey = errors.New("duplicate key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes which field broke which rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is a shorthand constructor.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StateError reports the status a record was found in.
type StateError struct {
	ID      string
	Status  string
	Message string
}

func (e *StateError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s (status: %s)", e.Message, e.Status)
	}
	return fmt.Sprintf("%s (id: %s, status: %s)", e.Message, e.ID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrState)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
