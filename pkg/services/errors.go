// Package services provides the business operations behind the HTTP API.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidGraph      = errors.New("invalid workflow graph")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrEmptyWorkspaceID  = errors.New("workspace ID cannot be empty")
	ErrInvalidCron       = errors.New("invalid cron expression")
	ErrInvalidRetryLimit = errors.New("max retries out of range")

	// Business logic conflicts (409 Conflict).
	ErrDefinitionArchived = errors.New("cannot modify archived definition")
	ErrExecutionFinished  = errors.New("execution already reached a terminal state")
	ErrDeadLetterClosed   = errors.New("dead letter entry already triaged")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyWorkspaceID) ||
		errors.Is(err, ErrInvalidCron) ||
		errors.Is(err, ErrInvalidRetryLimit)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDefinitionArchived) ||
		errors.Is(err, ErrExecutionFinished) ||
		errors.Is(err, ErrDeadLetterClosed)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
