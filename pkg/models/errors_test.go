package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: ErrorTypeUnknown,
		},
		{
			name:     "node error classification wins",
			err:      NewNodeError(ErrorTypeRateLimit, errors.New("429 from upstream")),
			expected: ErrorTypeRateLimit,
		},
		{
			name:     "wrapped node error still classified",
			err:      fmt.Errorf("request failed: %w", NewNodeError(ErrorTypeServerError, errors.New("boom"))),
			expected: ErrorTypeServerError,
		},
		{
			name:     "deadline exceeded is a timeout",
			err:      context.DeadlineExceeded,
			expected: ErrorTypeTimeout,
		},
		{
			name:     "plain error is unknown",
			err:      errors.New("whatever"),
			expected: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.Equal(t, ErrorTypeRateLimit, ClassifyHTTPStatus(http.StatusTooManyRequests))
	assert.Equal(t, ErrorTypeTimeout, ClassifyHTTPStatus(http.StatusRequestTimeout))
	assert.Equal(t, ErrorTypeTimeout, ClassifyHTTPStatus(http.StatusGatewayTimeout))
	assert.Equal(t, ErrorTypeServerError, ClassifyHTTPStatus(http.StatusInternalServerError))
	assert.Equal(t, ErrorTypeServerError, ClassifyHTTPStatus(http.StatusBadGateway))
	assert.Equal(t, ErrorTypeValidation, ClassifyHTTPStatus(http.StatusBadRequest))
	assert.Equal(t, ErrorTypeValidation, ClassifyHTTPStatus(http.StatusNotFound))
	assert.Equal(t, ErrorTypeUnknown, ClassifyHTTPStatus(http.StatusOK))
}

func TestNodeError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	nodeErr := NewNodeError(ErrorTypeTimeout, cause)

	assert.ErrorIs(t, nodeErr, cause)
	assert.Contains(t, nodeErr.Error(), "timeout")
	assert.Contains(t, nodeErr.Error(), "root cause")
}

func TestRetryConfig_IsRetryable(t *testing.T) {
	config := DefaultRetryConfig()

	assert.True(t, config.IsRetryable(ErrorTypeTimeout))
	assert.True(t, config.IsRetryable(ErrorTypeRateLimit))
	assert.True(t, config.IsRetryable(ErrorTypeServerError))
	assert.True(t, config.IsRetryable(ErrorTypeConnectionError))

	assert.False(t, config.IsRetryable(ErrorTypeValidation))
	assert.False(t, config.IsRetryable(ErrorTypeUnknown))
	assert.False(t, config.IsRetryable(ErrorTypeWaitTimeout))
}
