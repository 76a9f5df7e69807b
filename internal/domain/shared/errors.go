package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors. The typed errors below unwrap to one of these so
// callers can match with errors.Is and read the code with errors.As.
var (
	ErrValidation             = NewDomainError("VALIDATION_ERROR", "Validation failed")
	ErrNotFound               = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidStateTransition = NewDomainError("INVALID_STATE_TRANSITION", "Operation not allowed in current state")
	ErrConcurrencyConflict    = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrIdentityMismatch       = NewDomainError("IDENTITY_MISMATCH", "Entities do not describe the same person")
	ErrInvalidInput           = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrUnauthorized           = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
)

// ValidationError reports a command or value that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a validation error for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports that no entity exists for ID.
type NotFoundError struct {
	ID uuid.UUID
}

// NewNotFoundError creates a not-found error for id
func NewNotFoundError(id uuid.UUID) *NotFoundError {
	return &NotFoundError{ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("person %s not found", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateTransitionError reports a command rejected by the lifecycle.
type InvalidStateTransitionError struct {
	From      string
	Attempted string
}

// NewInvalidStateTransitionError creates an invalid transition error
func NewInvalidStateTransitionError(from, attempted string) *InvalidStateTransitionError {
	return &InvalidStateTransitionError{From: from, Attempted: attempted}
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a person in state %s", e.Attempted, e.From)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ConcurrencyConflictError reports an optimistic concurrency failure.
type ConcurrencyConflictError struct {
	Expected int64
	Actual   int64
}

// NewConcurrencyConflictError creates a concurrency conflict error
func NewConcurrencyConflictError(expected, actual int64) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{Expected: expected, Actual: actual}
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict: expected version %d, actual version %d", e.Expected, e.Actual)
}

func (e *ConcurrencyConflictError) Unwrap() error { return ErrConcurrencyConflict }

// IdentityMismatchError reports a merge refused by the disambiguation score.
type IdentityMismatchError struct {
	Score     float64
	Threshold float64
}

// NewIdentityMismatchError creates an identity mismatch error
func NewIdentityMismatchError(score, threshold float64) *IdentityMismatchError {
	return &IdentityMismatchError{Score: score, Threshold: threshold}
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("identity mismatch: similarity %.2f below threshold %.2f", e.Score, e.Threshold)
}

func (e *IdentityMismatchError) Unwrap() error { return ErrIdentityMismatch }
