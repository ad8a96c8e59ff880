package models

import (
	"strings"
	"time"
)

// PackSessionStatus represents the status of a pack ripping session
type PackSessionStatus string

const (
	PackSessionActive PackSessionStatus = "active"
	PackSessionEnded  PackSessionStatus = "ended"
)

// SessionCardSource records how a card entered the session
type SessionCardSource string

const (
	SessionCardAutoConfirmed SessionCardSource = "auto"     // voice match above the auto-confirm threshold
	SessionCardSelected      SessionCardSource = "selected" // picked from an ambiguous prompt
	SessionCardManual        SessionCardSource = "manual"
)

// PackSession is one pack ripping session against a single set
type PackSession struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	SetName   string            `json:"set_name" gorm:"not null"`
	SetCode   string            `json:"set_code" gorm:"index"`
	Status    PackSessionStatus `json:"status" gorm:"not null;default:'active';index"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Cards     []SessionCard     `json:"cards,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// SessionCard is a card pulled during a session
type SessionCard struct {
	ID           string            `json:"id" gorm:"primaryKey"`
	SessionID    string            `json:"session_id" gorm:"not null;index"`
	CardName     string            `json:"card_name" gorm:"not null"`
	CardNumber   string            `json:"card_number"`
	Rarity       string            `json:"card_rarity"`
	ArtVariant   string            `json:"art_variant"`
	Quantity     int               `json:"quantity" gorm:"not null;default:1"`
	Source       SessionCardSource `json:"source" gorm:"default:'manual'"`
	MatchScore   int               `json:"match_score"`
	Transcript   string            `json:"transcript,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	TCGPrice     *float64          `json:"tcg_price"`
	MarketPrice  *float64          `json:"tcg_market_price"`
	AveragePrice *float64          `json:"average_price"`
	PriceError   string            `json:"price_error,omitempty"`
	PricedAt     *time.Time        `json:"priced_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// IdentityKey identifies a printing within a session. Adding a card with the
// same key increases the quantity of the existing row instead.
func (c *SessionCard) IdentityKey() string {
	return strings.ToLower(strings.Join([]string{
		strings.TrimSpace(c.CardName),
		strings.TrimSpace(c.CardNumber),
		strings.TrimSpace(c.Rarity),
		strings.TrimSpace(c.ArtVariant),
	}, FingerprintSeparator))
}

// Query builds the price lookup query for the card
func (c *SessionCard) Query() CardQuery {
	return CardQuery{
		CardNumber: c.CardNumber,
		Rarity:     c.Rarity,
		ArtVariant: c.ArtVariant,
		CardName:   c.CardName,
	}
}

// Stale reports whether the card holds a good price older than cutoff
func (c *SessionCard) Stale(cutoff time.Time) bool {
	return c.PricedAt != nil && c.PriceError == "" && c.PricedAt.Before(cutoff)
}

// ApplyPrice copies the price data of a record onto the card
func (c *SessionCard) ApplyPrice(r *PriceRecord, at time.Time) {
	if r == nil {
		return
	}
	if v, ok := r.TCGPrice.Float(); ok {
		c.TCGPrice = &v
	} else {
		c.TCGPrice = nil
	}
	if v, ok := r.TCGMarketPrice.Float(); ok {
		c.MarketPrice = &v
	} else {
		c.MarketPrice = nil
	}
	c.AveragePrice = cloneFloat(r.AveragePrice)
	if c.ImageURL == "" {
		c.ImageURL = r.ImageURL
	}
	c.PriceError = ""
	c.PricedAt = &at
}

// SessionTotals summarizes the cards of a session
type SessionTotals struct {
	UniqueCards   int     `json:"unique_cards"`
	TotalCards    int     `json:"total_cards"`
	PricedCards   int     `json:"priced_cards"`
	TotalValue    float64 `json:"total_value"`
	TotalLowValue float64 `json:"total_low_value"`
}

// Totals sums quantities and values. A card's value is its average price
// times its quantity; cards without a price are counted but add no value.
func (s *PackSession) Totals() SessionTotals {
	var t SessionTotals
	for _, c := range s.Cards {
		t.UniqueCards++
		t.TotalCards += c.Quantity
		if c.AveragePrice == nil {
			continue
		}
		t.PricedCards++
		t.TotalValue += *c.AveragePrice * float64(c.Quantity)
		if c.TCGPrice != nil {
			t.TotalLowValue += *c.TCGPrice * float64(c.Quantity)
		}
	}
	return t
}
