/*
errors.go - Centralized error types for the ledger and services

PURPOSE:
  All shared error types in one place. Domain packages wrap these with
  additional context, and the HTTP layer classifies them with the helpers
  at the bottom of this file.

ERROR CATEGORIES:
  1. Ledger errors - Transaction persistence failures
  2. Validation errors - Business rule violations
  3. Store errors - Missing records, illegal state transitions
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
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when a transaction cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrInsufficientBalance is returned when an advance exceeds what is still available.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a status transition is not allowed.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrInvalidCycle is returned when a payroll cycle is not a YYYY-MM month.
	ErrInvalidCycle = errors.New("invalid payroll cycle")

	// ErrValidation is returned for malformed client input.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists is returned when a unique natural key is reused.
	ErrAlreadyExists = errors.New("already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about an advance that exceeds the limit.
type InsufficientBalanceError struct {
	EntityID  EntityID
	CycleID   CycleID
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// NotFoundError names the kind and id of a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StateError reports an illegal status transition.
type StateError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidCycle) ||
		errors.Is(err, ErrValidation)
}

// IsConflict returns true if the request collides with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
