package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store. With a non-zero quota, writes that
// would push the total size of keys and values past it fail with
// ErrQuotaExceeded, the way browser storage does.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	quota   int
	used    int
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. quota is in bytes; 0 means unlimited.
func NewMemoryStore(quota int) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		quota:   quota,
		now:     time.Now,
	}
}

// SetClock replaces the time source, for tests
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	e, ok := s.entries[key]
	now := s.now()
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		s.mu.Lock()
		s.deleteLocked(key)
		s.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	size := len(key) + len(value)
	used := s.used
	if old, ok := s.entries[key]; ok {
		used -= len(key) + len(old.value)
	}
	if s.quota > 0 && used+size > s.quota {
		return ErrQuotaExceeded
	}

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	s.used = used + size
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.deleteLocked(key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) deleteLocked(key string) {
	if e, ok := s.entries[key]; ok {
		s.used -= len(key) + len(e.value)
		delete(s.entries, key)
	}
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var keys []string
	for k, e := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Used returns the bytes currently counted against the quota
func (s *MemoryStore) Used() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}
