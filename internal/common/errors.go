// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/model"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Pipeline errors.
	ErrSessionBusy          = errors.New("session is busy with another request")
	ErrInferenceUnavailable = errors.New("inference service unavailable")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// ExtractionFailure records why the primary extractor could not produce a
// candidate. It never reaches the user; the resolver logs it and falls back.
type ExtractionFailure struct {
	Err    error
	Reason string
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
	}
	return "extraction failed (" + e.Reason + ")"
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// ValidationFailure carries every field that failed validation.
type ValidationFailure struct {
	Errors []model.FieldError
}

func (e *ValidationFailure) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictFailure reports that a write would collide with an existing record.
type ConflictFailure struct {
	Err      error
	Conflict model.Conflict
}

func (e *ConflictFailure) Error() string {
	return fmt.Sprintf("conflict: %s %q already used by record %d",
		e.Conflict.Field, e.Conflict.Value, e.Conflict.RecordID)
}

func (e *ConflictFailure) Unwrap() error {
	return e.Err
}

// ConfirmationReason explains why a confirmation was refused.
type ConfirmationReason string

// Confirmation failure reasons.
const (
	ReasonNotFound   ConfirmationReason = "not_found"
	ReasonNotPending ConfirmationReason = "not_pending"
	ReasonExpired    ConfirmationReason = "expired"
)

// ConfirmationFailure is returned when a decision targets an operation that
// can no longer be confirmed.
type ConfirmationFailure struct {
	OperationID string
	Status      model.Status
	Reason      ConfirmationReason
}

func (e *ConfirmationFailure) Error() string {
	switch e.Reason {
	case ReasonNotPending:
		return fmt.Sprintf("operation %s is %s, not pending", e.OperationID, e.Status)
	case ReasonExpired:
		return fmt.Sprintf("operation %s has expired", e.OperationID)
	default:
		return fmt.Sprintf("operation %s not found", e.OperationID)
	}
}

// Is lets errors.Is(err, ErrNotFound) match a not_found confirmation failure.
func (e *ConfirmationFailure) Is(target error) bool {
	return target == ErrNotFound && e.Reason == ReasonNotFound
}

// ExecutionFailure wraps an unexpected record store error.
type ExecutionFailure struct {
	Err error
	Op  string
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Op, e.Err)
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

// Retryable reports that resubmitting the same operation may succeed.
func (e *ExecutionFailure) Retryable() bool {
	return true
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	var execErr *ExecutionFailure
	if errors.As(err, &execErr) {
		return execErr.Retryable()
	}

	return false
}
