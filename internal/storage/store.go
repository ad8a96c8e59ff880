// Package storage is the persistent key/value layer shared by the caches.
// Each component writes under its own key prefix, so concurrent writers
// never touch the same keys.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrQuotaExceeded is returned when a write would not fit in the store
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is a string key/value store with optional per-key expiry.
// A missing or expired key is reported with ok == false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes the value. A ttl of zero keeps the entry until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Keys lists the live keys starting with prefix, in no particular order
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// DeletePrefix removes every key under prefix and returns how many were removed
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
