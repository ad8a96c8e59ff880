package models

import "time"

// StorageEntry is one key/value pair of the persistent store.
// Components keep their keys under disjoint prefixes ("priceCache",
// "priceHistory", "ygo-card-image-", "settings").
type StorageEntry struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Key       string     `gorm:"column:storage_key;uniqueIndex;not null;size:255" json:"key"`
	Value     string     `gorm:"not null" json:"value"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at"` // nil = never expires
}

func (StorageEntry) TableName() string {
	return "storage_entries"
}

// IsExpired returns true if the entry has expired at the given instant
func (e *StorageEntry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}
	return !now.Before(*e.ExpiresAt)
}
