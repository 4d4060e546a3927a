// Package errors provides standardized error handling for the panel scan cycle.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Command channel failures: the injection trigger could not be reached
	// or reported failure. Callers see both as the same kind.
	ErrCodeInjectionFailed    ErrorCode = "INJECTION_FAILED"
	ErrCodeChannelUnavailable ErrorCode = "CHANNEL_UNAVAILABLE"

	// Single-link analysis failure. Isolated, never fatal to the batch.
	ErrCodeAnalysisFailed ErrorCode = "ANALYSIS_FAILED"

	// Aggregation over an empty category set.
	ErrCodeAggregationEmpty ErrorCode = "AGGREGATION_EMPTY"

	// Malformed message or response shape on any channel, including a
	// category score outside the 0-5 scale.
	ErrCodeProtocolViolation ErrorCode = "PROTOCOL_VIOLATION"

	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewInjectionFailedError covers both an explicit failure response and the
// absence of any responder on the command channel.
func NewInjectionFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInjectionFailed,
		Message:   "Content script injection failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelUnavailableError creates a retryable transport-level bridge error.
func NewChannelUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChannelUnavailable,
		Message:   "Message channel unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnalysisFailedError creates a per-link analysis error.
func NewAnalysisFailedError(url, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalysisFailed,
		Message:   "Document analysis failed",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"url": url},
		Timestamp: time.Now().UTC(),
	}
}

// NewAggregationEmptyError signals that no categories were available to score.
func NewAggregationEmptyError() *StandardError {
	return &StandardError{
		Code:      ErrCodeAggregationEmpty,
		Message:   "No categories to aggregate",
		Details:   "composite score is undefined for an empty category set",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProtocolViolationError rejects a malformed message or response at the
// boundary, before it reaches aggregation arithmetic.
func NewProtocolViolationError(channel, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProtocolViolation,
		Message:   fmt.Sprintf("Malformed payload on %s channel", channel),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidInputError marks a malformed caller-supplied input, e.g. a batch
// containing a link without a URL.
func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// CodeOf extracts the ErrorCode from err, or empty if err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsCode reports whether err is a StandardError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
