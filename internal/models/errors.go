package models

import (
	"errors"
	"fmt"
)

// ErrorType identifies the category of a failed downstream attempt.
type ErrorType string

const (
	// Response arrived with a non-2xx status
	ErrDownstreamStatus ErrorType = "downstream_status"
	// Connection refused, reset, DNS failure, etc.
	ErrDownstreamTransport ErrorType = "downstream_transport"
	// Per-call timeout elapsed
	ErrDownstreamTimeout ErrorType = "downstream_timeout"
	// 2xx with a body that is not the expected JSON
	ErrDownstreamDecode ErrorType = "downstream_decode"
	// Breaker refused the attempt without a call
	ErrCircuitOpen ErrorType = "circuit_open"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// AttemptError describes why a single remote attempt did not succeed.
type AttemptError struct {
	Type    ErrorType
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("attempt %d: %s", e.Attempt, e.Type)
	}
	return fmt.Sprintf("attempt %d: %s: %v", e.Attempt, e.Type, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// AttemptErrorType extracts the ErrorType from err, or ErrInternalError.
func AttemptErrorType(err error) ErrorType {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Type
	}
	return ErrInternalError
}
