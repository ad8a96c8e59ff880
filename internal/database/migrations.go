package database

import (
	"log"

	"gorm.io/gorm"
)

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	if err := migrateSessionCardQuantity(db); err != nil {
		return err
	}
	return nil
}

// migrateSessionCardQuantity fixes rows written before quantity had a default.
// This is safe to run multiple times as it only updates rows with no usable quantity.
func migrateSessionCardQuantity(db *gorm.DB) error {
	if !db.Migrator().HasTable("session_cards") {
		return nil
	}

	result := db.Exec(`
		UPDATE session_cards
		SET quantity = 1
		WHERE quantity IS NULL OR quantity < 1
	`)
	if result.Error != nil {
		log.Printf("Warning: failed to migrate session_cards quantity: %v", result.Error)
	} else if result.RowsAffected > 0 {
		log.Printf("Migrated %d session_cards rows", result.RowsAffected)
	}

	// Source was added after the first sessions were recorded
	db.Exec(`UPDATE session_cards SET source = 'manual' WHERE source IS NULL OR source = ''`)
	return nil
}
