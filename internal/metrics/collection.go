package metrics

import (
	"log"

	"gorm.io/gorm"

	"github.com/codyseavey/ygo-ripper/internal/models"
)

// UpdateSessionMetrics queries the database and updates the pack session gauges.
// Call this after session changes.
func UpdateSessionMetrics(db *gorm.DB) {
	if db == nil {
		return
	}

	activeCards := db.Model(&models.SessionCard{}).
		Joins("JOIN pack_sessions ON pack_sessions.id = session_cards.session_id").
		Where("pack_sessions.status = ?", models.PackSessionActive)

	var totalCards int64
	if err := activeCards.Session(&gorm.Session{}).
		Select("COALESCE(SUM(session_cards.quantity), 0)").Scan(&totalCards).Error; err != nil {
		log.Printf("Metrics: failed to count session cards: %v", err)
	} else {
		SessionCardsTotal.Set(float64(totalCards))
	}

	var totalValue float64
	if err := activeCards.Session(&gorm.Session{}).
		Select("COALESCE(SUM(session_cards.average_price * session_cards.quantity), 0)").
		Scan(&totalValue).Error; err != nil {
		log.Printf("Metrics: failed to calculate session value: %v", err)
	} else {
		SessionValueUSD.Set(totalValue)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	if err := db.Model(&models.PackSession{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error; err != nil {
		log.Printf("Metrics: failed to count sessions by status: %v", err)
	} else {
		for _, sc := range counts {
			SessionsByStatus.WithLabelValues(sc.Status).Set(float64(sc.Count))
		}
	}
}
