/*
errors.go - Centralized error types for the engine

ERROR CATEGORIES:
  1. Validation - malformed input, rejected before any write
  2. Not found  - referenced commission/obligation/professional missing
  3. Transition - status would move backwards or out of a terminal state
  4. Persistence - a store write failed; earlier steps are not rolled back
     unless they ran inside the same WithTx

USAGE:
  if errors.Is(err, core.ErrPayableNotFound) { ... }
  var verr *core.ValidationError
  if errors.As(err, &verr) { ... }
*/
package core

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")

	ErrCommissionNotFound    = fmt.Errorf("commission %w", ErrNotFound)
	ErrPayableNotFound       = fmt.Errorf("payable obligation %w", ErrNotFound)
	ErrProfessionalNotFound  = fmt.Errorf("professional %w", ErrNotFound)
	ErrPurchaseOrderNotFound = fmt.Errorf("purchase order %w", ErrNotFound)

	// ErrInvalidTransition is returned when a status would move backwards
	// or an operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateCommission is returned by a plain insert that hits the
	// (professional_id, period_start, period_end) uniqueness constraint.
	ErrDuplicateCommission = errors.New("commission already exists for professional and period")

	// ErrLockNotObtained is returned when a serialization lock is held elsewhere.
	ErrLockNotObtained = errors.New("lock not obtained")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError describes rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError carries the offending states.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// PersistenceError wraps a store failure with the step that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Persist wraps err as a *PersistenceError unless it is nil or already
// carries a domain meaning (not found, validation, transition).
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsClientError(err) || IsConflict(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict returns true if the request clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateCommission) ||
		errors.Is(err, ErrLockNotObtained)
}
