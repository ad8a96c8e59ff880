package voice

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies recognizer failures
type ErrorKind string

const (
	ErrorPermissionDenied ErrorKind = "permission-denied"
	ErrorNetwork          ErrorKind = "network-error"
	ErrorNoSpeech         ErrorKind = "no-speech"
	ErrorNotSupported     ErrorKind = "not-supported"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorAborted          ErrorKind = "aborted"
	ErrorUnknown          ErrorKind = "unknown"
)

var (
	ErrNotInitialized = errors.New("voice: recognizer not initialized")
	ErrBusy           = errors.New("voice: recognizer is listening")
	ErrClosed         = errors.New("voice: recognizer closed")
)

// Error is a recognizer failure of a known kind
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates an error of the given kind
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" && e.Err == nil {
		return fmt.Sprintf("voice: %s", e.Kind)
	}
	if e.Err == nil {
		return fmt.Sprintf("voice: %s: %s", e.Kind, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("voice: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("voice: %s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err,
// &voice.Error{Kind: voice.ErrorTimeout}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// Retryable reports whether the recognizer may re-arm the engine after this error
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrorNetwork, ErrorNoSpeech, ErrorTimeout:
		return true
	}
	return false
}

// AsError converts any error into an *Error. Deadline errors become
// timeouts and cancellations become aborts; anything else is unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var verr *Error
	if errors.As(err, &verr) {
		return verr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: ErrorTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: ErrorAborted, Err: err}
	}
	return &Error{Kind: ErrorUnknown, Err: err}
}
