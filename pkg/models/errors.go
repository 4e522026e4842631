package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType classifies node-level failures for the retry policy.
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation_error" // Bad node config, never retried
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeConnectionError ErrorType = "connection_error"
	ErrorTypeWaitTimeout     ErrorType = "wait_timeout" // Event wait exceeded its deadline
	ErrorTypeUnknown         ErrorType = "unknown"
)

// NodeError is a classified failure raised by a node handler. The executor
// never lets these escape; they are captured into a step record and handed
// to the retry manager.
type NodeError struct {
	Type ErrorType
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError wraps an error with an explicit classification.
func NewNodeError(errorType ErrorType, err error) *NodeError {
	return &NodeError{Type: errorType, Err: err}
}

// NewValidationError marks a configuration problem that must not be retried.
func NewValidationError(format string, args ...any) *NodeError {
	return &NodeError{Type: ErrorTypeValidation, Err: fmt.Errorf(format, args...)}
}

// ClassifyError maps an arbitrary error to an ErrorType. Handlers that know
// better wrap their errors in a NodeError, which always wins.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Type
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}

		return ErrorTypeConnectionError
	}

	return ErrorTypeUnknown
}

// ClassifyHTTPStatus maps an HTTP response status to an ErrorType.
func ClassifyHTTPStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status >= 500:
		return ErrorTypeServerError
	case status >= 400:
		return ErrorTypeValidation
	default:
		return ErrorTypeUnknown
	}
}
