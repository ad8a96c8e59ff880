package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/models"
)

// ErrSessionEnded is returned when a card is added to an ended session
var ErrSessionEnded = errors.New("pack session has ended")

// PackSessionService is the ledger of pack ripping sessions. At most one
// session is active at a time; starting a new one ends the previous.
type PackSessionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPackSessionService creates the ledger over a migrated database
func NewPackSessionService(db *gorm.DB) *PackSessionService {
	return &PackSessionService{db: db, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *PackSessionService) SetClock(now func() time.Time) {
	s.now = now
}

// StartSession ends any active session and opens a new one for the set
func (s *PackSessionService) StartSession(ctx context.Context, setName, setCode string) (*models.PackSession, error) {
	setName = strings.TrimSpace(setName)
	if setName == "" {
		return nil, invalidInput(errors.New("set name is required"))
	}

	now := s.now()
	session := &models.PackSession{
		ID:        uuid.New().String(),
		SetName:   setName,
		SetCode:   strings.ToUpper(strings.TrimSpace(setCode)),
		Status:    models.PackSessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PackSession{}).
			Where("status = ?", models.PackSessionActive).
			Updates(map[string]interface{}{
				"status":     models.PackSessionEnded,
				"ended_at":   now,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	infoLog("SESSION", "Started session %s for %s", session.ID, setName)
	metrics.UpdateSessionMetrics(s.db)
	return session, nil
}

// ActiveSession returns the active session with its cards
func (s *PackSessionService) ActiveSession(ctx context.Context) (*models.PackSession, error) {
	var session models.PackSession
	err := s.withCards(ctx).
		Where("status = ?", models.PackSessionActive).
		Order("created_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession returns a session with its cards
func (s *PackSessionService) GetSession(ctx context.Context, id string) (*models.PackSession, error) {
	var session models.PackSession
	err := s.withCards(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns the most recent sessions first, without their cards
func (s *PackSessionService) ListSessions(ctx context.Context, limit int) ([]models.PackSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []models.PackSession
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (s *PackSessionService) withCards(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Cards", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	})
}

// AddCard records a pulled card. A card with the same identity as one
// already in the session increases that row's quantity instead; the
// returned card is the stored row.
func (s *PackSessionService) AddCard(ctx context.Context, sessionID string, card models.SessionCard) (*models.SessionCard, error) {
	card.CardName = strings.TrimSpace(card.CardName)
	if card.CardName == "" {
		return nil, invalidInput(errors.New("card name is required"))
	}
	if card.Quantity < 1 {
		card.Quantity = 1
	}
	if card.Source == "" {
		card.Source = models.SessionCardManual
	}

	var stored models.SessionCard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.PackSession
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.Status != models.PackSessionActive {
			return ErrSessionEnded
		}

		var existing []models.SessionCard
		if err := tx.Where("session_id = ?", sessionID).Find(&existing).Error; err != nil {
			return err
		}
		now := s.now()
		key := card.IdentityKey()
		for _, c := range existing {
			if c.IdentityKey() != key {
				continue
			}
			stored = c
			stored.Quantity += card.Quantity
			stored.UpdatedAt = now
			return tx.Model(&models.SessionCard{}).Where("id = ?", c.ID).
				Updates(map[string]interface{}{"quantity": stored.Quantity, "updated_at": now}).Error
		}

		card.ID = uuid.New().String()
		card.SessionID = sessionID
		card.CreatedAt = now
		card.UpdatedAt = now
		stored = card
		if err := tx.Create(&stored).Error; err != nil {
			return err
		}
		return tx.Model(&models.PackSession{}).Where("id = ?", sessionID).Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	debugLog("SESSION", "Recorded %s x%d (%s)", stored.CardName, stored.Quantity, stored.Source)
	metrics.UpdateSessionMetrics(s.db)
	return &stored, nil
}

// SetQuantity changes a card's quantity; zero or less removes the card
func (s *PackSessionService) SetQuantity(ctx context.Context, cardID string, quantity int) error {
	if quantity < 1 {
		return s.RemoveCard(ctx, cardID)
	}
	result := s.db.WithContext(ctx).Model(&models.SessionCard{}).Where("id = ?", cardID).
		Updates(map[string]interface{}{"quantity": quantity, "updated_at": s.now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	metrics.UpdateSessionMetrics(s.db)
	return nil
}

// RemoveCard deletes a card from its session
func (s *PackSessionService) RemoveCard(ctx context.Context, cardID string) error {
	result := s.db.WithContext(ctx).Delete(&models.SessionCard{}, "id = ?", cardID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	metrics.UpdateSessionMetrics(s.db)
	return nil
}

// ApplyPrice stores the prices of a lookup on the card. Only the price
// columns are written so a concurrent quantity change is kept.
func (s *PackSessionService) ApplyPrice(ctx context.Context, cardID string, rec *models.PriceRecord) error {
	var card models.SessionCard
	if err := s.db.WithContext(ctx).First(&card, "id = ?", cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCardNotFound
		}
		return err
	}

	now := s.now()
	card.ApplyPrice(rec, now)
	err := s.db.WithContext(ctx).Model(&models.SessionCard{}).Where("id = ?", cardID).
		Updates(map[string]interface{}{
			"tcg_price":     card.TCGPrice,
			"market_price":  card.MarketPrice,
			"average_price": card.AveragePrice,
			"image_url":     card.ImageURL,
			"price_error":   "",
			"priced_at":     card.PricedAt,
			"updated_at":    now,
		}).Error
	if err != nil {
		return err
	}
	metrics.UpdateSessionMetrics(s.db)
	return nil
}

// RecordPriceError notes why a card could not be priced
func (s *PackSessionService) RecordPriceError(ctx context.Context, cardID string, cause error) error {
	result := s.db.WithContext(ctx).Model(&models.SessionCard{}).Where("id = ?", cardID).
		Updates(map[string]interface{}{"price_error": cause.Error(), "updated_at": s.now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	return nil
}

// EndSession closes a session. Ending an ended session is a no-op.
func (s *PackSessionService) EndSession(ctx context.Context, id string) (*models.PackSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == models.PackSessionEnded {
		return session, nil
	}

	now := s.now()
	session.Status = models.PackSessionEnded
	session.EndedAt = &now
	session.UpdatedAt = now
	err = s.db.WithContext(ctx).Model(&models.PackSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     session.Status,
			"ended_at":   now,
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}

	totals := session.Totals()
	infoLog("SESSION", "Ended session %s: %d cards, $%.2f", id, totals.TotalCards, totals.TotalValue)
	metrics.UpdateSessionMetrics(s.db)
	return session, nil
}

var csvHeader = []string{
	"card_name", "card_number", "rarity", "art_variant", "quantity",
	"tcg_price", "tcg_market_price", "average_price", "line_value", "source", "match_score",
}

// ExportCSV writes the session's cards as CSV, one row per card
func (s *PackSessionService) ExportCSV(ctx context.Context, id string, w io.Writer) error {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range session.Cards {
		lineValue := ""
		if c.AveragePrice != nil {
			lineValue = formatPrice(*c.AveragePrice * float64(c.Quantity))
		}
		row := []string{
			c.CardName,
			c.CardNumber,
			c.Rarity,
			c.ArtVariant,
			strconv.Itoa(c.Quantity),
			formatOptionalPrice(c.TCGPrice),
			formatOptionalPrice(c.MarketPrice),
			formatOptionalPrice(c.AveragePrice),
			lineValue,
			string(c.Source),
			strconv.Itoa(c.MatchScore),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatOptionalPrice(v *float64) string {
	if v == nil {
		return ""
	}
	return formatPrice(*v)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
