package models

import (
	"errors"
	"strings"
)

// FingerprintSeparator joins the fields of a Fingerprint. It is stripped from
// every input field so it can never appear inside one.
const FingerprintSeparator = "|"

// DefaultCondition is applied when a query does not name a condition
const DefaultCondition = "near-mint"

var (
	ErrMissingCardNumber = errors.New("card number is required")
	ErrMissingRarity     = errors.New("card rarity is required")
)

// CardQuery identifies a card the user wants priced
type CardQuery struct {
	CardNumber   string `json:"card_number"`
	Rarity       string `json:"card_rarity"`
	Condition    string `json:"condition"`
	ArtVariant   string `json:"art_variant"`
	CardName     string `json:"card_name,omitempty"`
	ForceRefresh bool   `json:"force_refresh"`
}

// Normalize trims every field and fills the documented defaults.
// An empty defaultCondition falls back to DefaultCondition.
func (q CardQuery) Normalize(defaultCondition string) CardQuery {
	if defaultCondition == "" {
		defaultCondition = DefaultCondition
	}
	q.CardNumber = strings.TrimSpace(q.CardNumber)
	q.Rarity = strings.TrimSpace(q.Rarity)
	q.Condition = strings.TrimSpace(q.Condition)
	q.ArtVariant = strings.TrimSpace(q.ArtVariant)
	q.CardName = strings.TrimSpace(q.CardName)
	if q.Condition == "" {
		q.Condition = defaultCondition
	}
	return q
}

// Validate checks the required fields
func (q CardQuery) Validate() error {
	if strings.TrimSpace(q.CardNumber) == "" {
		return ErrMissingCardNumber
	}
	if strings.TrimSpace(q.Rarity) == "" {
		return ErrMissingRarity
	}
	return nil
}

// Fingerprint returns the canonical cache key for the query. Queries that
// differ only in letter case share a fingerprint.
func (q CardQuery) Fingerprint() string {
	parts := []string{q.CardNumber, q.Rarity, q.Condition, q.ArtVariant, q.CardName}
	for i, p := range parts {
		p = strings.ReplaceAll(p, FingerprintSeparator, "")
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, FingerprintSeparator)
}
