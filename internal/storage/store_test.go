package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/codyseavey/ygo-ripper/internal/database"
)

func newTestDBStore(t *testing.T) *DBStore {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "storage.db"))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	return NewDBStore(db)
}

// stores returns one of each Store implementation with a controllable clock
func stores(t *testing.T, now *time.Time) map[string]Store {
	mem := NewMemoryStore(0)
	mem.SetClock(func() time.Time { return *now })
	db := newTestDBStore(t)
	db.SetClock(func() time.Time { return *now })
	return map[string]Store{"memory": mem, "db": db}
}

func TestStoreRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for name, s := range stores(t, &now) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
				t.Errorf("Get(missing) = ok %v, err %v; want a miss", ok, err)
			}

			if err := s.Set(ctx, "settings", `{"a":1}`, 0); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, "settings", `{"a":2}`, 0); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			v, ok, err := s.Get(ctx, "settings")
			if err != nil || !ok || v != `{"a":2}` {
				t.Errorf("Get(settings) = %q, %v, %v; want overwritten value", v, ok, err)
			}

			if err := s.Delete(ctx, "settings"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, ok, _ := s.Get(ctx, "settings"); ok {
				t.Error("Get after Delete should miss")
			}
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for name, s := range stores(t, &now) {
		t.Run(name, func(t *testing.T) {
			start := now
			defer func() { now = start }()

			if err := s.Set(ctx, "ygo-card-image-abc", "data", time.Hour); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			now = start.Add(59 * time.Minute)
			if _, ok, _ := s.Get(ctx, "ygo-card-image-abc"); !ok {
				t.Error("entry should be live before expiry")
			}

			// Exactly at expiry counts as expired
			now = start.Add(time.Hour)
			if _, ok, _ := s.Get(ctx, "ygo-card-image-abc"); ok {
				t.Error("entry should be expired at expiresAt")
			}
			keys, _ := s.Keys(ctx, "ygo-card-image-")
			if len(keys) != 0 {
				t.Errorf("Keys() after expiry = %v, want none", keys)
			}
		})
	}
}

func TestStoreKeysByPrefix(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	for name, s := range stores(t, &now) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"priceCache", "priceHistory", "ygo-card-image-1", "ygo-card-image-2", "YGO-CARD-IMAGE-3"} {
				if err := s.Set(ctx, k, "v", 0); err != nil {
					t.Fatalf("Set(%s) error = %v", k, err)
				}
			}

			keys, err := s.Keys(ctx, "ygo-card-image-")
			if err != nil {
				t.Fatalf("Keys() error = %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "ygo-card-image-1" || keys[1] != "ygo-card-image-2" {
				t.Errorf("Keys(ygo-card-image-) = %v, want the two lower-case image keys", keys)
			}

			removed, err := DeletePrefix(ctx, s, "ygo-card-image-")
			if err != nil || removed != 2 {
				t.Errorf("DeletePrefix() = %d, %v; want 2, nil", removed, err)
			}
			if _, ok, _ := s.Get(ctx, "priceCache"); !ok {
				t.Error("DeletePrefix removed a key outside its prefix")
			}
		})
	}
}

func TestMemoryStoreQuota(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(20)

	if err := s.Set(ctx, "k1", "0123456789", 0); err != nil {
		t.Fatalf("Set() within quota error = %v", err)
	}
	if err := s.Set(ctx, "k2", "0123456789", 0); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("Set() over quota error = %v, want ErrQuotaExceeded", err)
	}
	// Replacing a value only counts the difference
	if err := s.Set(ctx, "k1", "0123456789abcdef", 0); err != nil {
		t.Errorf("Set() replacement error = %v", err)
	}
	if s.Used() != 18 {
		t.Errorf("Used() = %d, want 18", s.Used())
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if s.Used() != 0 {
		t.Errorf("Used() after delete = %d, want 0", s.Used())
	}
}

func TestDBStoreStatsAndPurge(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := newTestDBStore(t)
	s.SetClock(func() time.Time { return now })

	_ = s.Set(ctx, "a", "1234", 0)
	_ = s.Set(ctx, "b", "12", time.Minute)

	entries, size := s.Stats(ctx)
	if entries != 2 || size != 6 {
		t.Errorf("Stats() = %d entries, %d bytes; want 2, 6", entries, size)
	}

	now = now.Add(2 * time.Minute)
	purged, err := s.PurgeExpired(ctx)
	if err != nil || purged != 1 {
		t.Errorf("PurgeExpired() = %d, %v; want 1, nil", purged, err)
	}
}
