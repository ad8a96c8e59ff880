package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a request rejected before any work was done
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable marks a pricing backend that could not serve a request
	ErrBackendUnavailable = errors.New("backend unavailable")

	ErrNoActiveSession = errors.New("no active pack session")
	ErrSessionNotFound = errors.New("pack session not found")
	ErrCardNotFound    = errors.New("session card not found")
)

// BackendError is returned when the pricing backend answers with a non-2xx
// status, a success=false envelope, or cannot be reached after retries.
// StatusCode is 0 when no response arrived.
type BackendError struct {
	APIBase    string
	StatusCode int
	Message    string
	Err        error

	transport bool
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode >= 300 {
		return fmt.Sprintf("Backend unavailable at %s: HTTP %d: %s", e.APIBase, e.StatusCode, msg)
	}
	return fmt.Sprintf("Backend unavailable at %s: %s", e.APIBase, msg)
}

func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBackendUnavailable}
	}
	return []error{ErrBackendUnavailable, e.Err}
}

// Retryable reports whether the request failed before the backend answered
func (e *BackendError) Retryable() bool {
	return e.transport
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
