package storage

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/models"
)

// DBStore keeps entries in the storage_entries table
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDBStore creates a store over an already migrated database
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db, now: utcNow}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// SetClock replaces the time source, for tests
func (s *DBStore) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// Get retrieves a value by key. Expired entries are deleted on read.
func (s *DBStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, nil
	}

	var entry models.StorageEntry
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		metrics.StorageErrors.WithLabelValues("get").Inc()
		return "", false, err
	}

	if entry.IsExpired(s.now()) {
		s.db.WithContext(ctx).Delete(&entry)
		return "", false, nil
	}
	return entry.Value, true, nil
}

// Set upserts the value, replacing value and expiry if the key exists
func (s *DBStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.db == nil {
		return nil
	}

	now := s.now()
	var expiresAt *time.Time
	if ttl > 0 {
		exp := now.Add(ttl)
		expiresAt = &exp
	}

	entry := models.StorageEntry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "storage_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value", "expires_at", "updated_at",
		}),
	}).Create(&entry).Error
	if err != nil {
		metrics.StorageErrors.WithLabelValues("set").Inc()
	}
	return err
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	if s.db == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Where("storage_key = ?", key).Delete(&models.StorageEntry{}).Error
	if err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
	}
	return err
}

// Keys matches the prefix with substr so the comparison stays case-sensitive
// (sqlite LIKE folds ASCII case).
func (s *DBStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.db == nil {
		return nil, nil
	}
	var keys []string
	q := s.db.WithContext(ctx).Model(&models.StorageEntry{}).
		Where("expires_at IS NULL OR expires_at > ?", s.now())
	if prefix != "" {
		q = q.Where("substr(storage_key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix)
	}
	if err := q.Pluck("storage_key", &keys).Error; err != nil {
		metrics.StorageErrors.WithLabelValues("keys").Inc()
		return nil, err
	}
	return keys, nil
}

// PurgeExpired deletes every expired entry and returns how many were removed
func (s *DBStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&models.StorageEntry{})
	return result.RowsAffected, result.Error
}

// Stats returns the number of stored entries and their total value size
func (s *DBStore) Stats(ctx context.Context) (entries int64, bytes int64) {
	if s.db == nil {
		return 0, 0
	}
	s.db.WithContext(ctx).Model(&models.StorageEntry{}).Count(&entries)

	var result struct {
		TotalBytes int64
	}
	s.db.WithContext(ctx).Model(&models.StorageEntry{}).
		Select("COALESCE(SUM(LENGTH(value)), 0) as total_bytes").Scan(&result)
	return entries, result.TotalBytes
}
