package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		base, max time.Duration
		n         int
		expected  time.Duration
	}{
		{time.Second, 5 * time.Second, 1, time.Second},
		{time.Second, 5 * time.Second, 3, 3 * time.Second},
		{time.Second, 5 * time.Second, 9, 5 * time.Second},
		{time.Second, 0, 9, 9 * time.Second},
		{time.Second, 0, 0, 0},
		{0, time.Second, 2, 0},
	}

	for _, tt := range tests {
		result := Delay(tt.base, tt.max, tt.n)
		if result != tt.expected {
			t.Errorf("Delay(%v, %v, %d) = %v, want %v", tt.base, tt.max, tt.n, result, tt.expected)
		}
	}
}

func TestLinearReset(t *testing.T) {
	l := NewLinear(10*time.Millisecond, 0)
	l.NextBackOff()
	l.NextBackOff()
	if got := l.NextBackOff(); got != 30*time.Millisecond {
		t.Errorf("third NextBackOff() = %v, want 30ms", got)
	}
	l.Reset()
	if got := l.NextBackOff(); got != 10*time.Millisecond {
		t.Errorf("NextBackOff() after Reset = %v, want 10ms", got)
	}
}

func TestPolicyStopsAfterMaxRetries(t *testing.T) {
	calls := 0
	err := backoff.Retry(func() error {
		calls++
		return errors.New("transport failure")
	}, Policy(context.Background(), time.Millisecond, 0, 3))

	if err == nil {
		t.Fatal("Retry should fail when every attempt fails")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 attempt + 3 retries)", calls)
	}
}

func TestPolicyPermanentErrorNotRetried(t *testing.T) {
	calls := 0
	want := errors.New("rejected")
	err := backoff.Retry(func() error {
		calls++
		return backoff.Permanent(want)
	}, Policy(context.Background(), time.Millisecond, 0, 3))

	if !errors.Is(err, want) {
		t.Errorf("Retry error = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
