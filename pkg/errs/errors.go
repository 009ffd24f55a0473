package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordination engine. Callers classify failures with
// errors.Is / errors.As rather than string matching.
var (
	// ErrTaskNotFound a result or query references an unknown task id
	ErrTaskNotFound = errors.New("task not found")

	// ErrBrokerUnavailable the queue transport cannot be reached; the caller
	// must not assume the dispatch was queued
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrDuplicateDispatch a dispatch for this task id is already pending or in flight
	ErrDuplicateDispatch = errors.New("dispatch already pending for task")

	// ErrTaskNotTerminal the operation requires the task to be in a terminal state
	ErrTaskNotTerminal = errors.New("task is not in a terminal state")

	// ErrInvalidTransition the requested lifecycle transition is not permitted
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// ValidationError rejects a bad task submission at the boundary, before it
// reaches the store or the broker.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error for a submission field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a submission validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExecutionError carries the outcome of a failed executor invocation. Timeout
// marks deadline expiry so the reconciler can promote it to the TIMEOUT status.
type ExecutionError struct {
	Message string
	Timeout bool
}

func (e *ExecutionError) Error() string {
	return e.Message
}
