package client

import (
	"errors"
	"fmt"
)

// NetworkError wraps a transport-level failure (connection refused, DNS,
// timeout). Always retryable.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the backend. AuthExpired marks a
// 401; the orchestrator still retries it unless Permanent is set, since the
// session layer may renew between cycles. Permanent marks client errors a
// retry cannot fix.
type ServerError struct {
	Status      int
	Message     string
	AuthExpired bool
	Permanent   bool
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Retryable reports whether a dispatch failure is worth another attempt.
func Retryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return !se.Permanent
	}
	return false
}
