// Package retry provides the linear back-off used for remote price calls and
// voice recovery, in the shape of a cenkalti/backoff BackOff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Linear waits attempt*Base before each retry, bounded by Max when Max > 0.
// It is not safe for concurrent use; create one per retry loop.
type Linear struct {
	Base time.Duration
	Max  time.Duration

	attempt int
}

// NewLinear creates a linear back-off
func NewLinear(base, max time.Duration) *Linear {
	return &Linear{Base: base, Max: max}
}

// NextBackOff returns the delay before the next retry
func (l *Linear) NextBackOff() time.Duration {
	l.attempt++
	return Delay(l.Base, l.Max, l.attempt)
}

// Reset starts the sequence over
func (l *Linear) Reset() {
	l.attempt = 0
}

// Attempt returns how many delays have been handed out since the last Reset
func (l *Linear) Attempt() int {
	return l.attempt
}

// Delay returns the wait before the n-th retry (n starting at 1)
func Delay(base, max time.Duration, n int) time.Duration {
	if n < 1 || base <= 0 {
		return 0
	}
	d := time.Duration(n) * base
	if max > 0 && d > max {
		return max
	}
	return d
}

// Policy builds a context-aware back-off that stops after maxRetries retries
func Policy(ctx context.Context, base, max time.Duration, maxRetries int) backoff.BackOffContext {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithMaxRetries(NewLinear(base, max), uint64(maxRetries))
	return backoff.WithContext(b, ctx)
}
