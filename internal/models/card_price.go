package models

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Price is a backend price that may arrive as a JSON string or number.
// The original form is kept for display and round-trips unchanged; Value is
// the coerced amount used for aggregate math.
type Price struct {
	Raw    string
	Value  decimal.Decimal
	Valid  bool
	quoted bool
}

// NewPrice builds a numeric price
func NewPrice(v float64) Price {
	d := decimal.NewFromFloat(v)
	return Price{Raw: d.String(), Value: d, Valid: true}
}

// NewPriceString builds a price that arrived as a string
func NewPriceString(s string) Price {
	p := Price{Raw: s, quoted: true}
	if d, err := decimal.NewFromString(cleanPriceText(s)); err == nil {
		p.Value = d
		p.Valid = true
	}
	return p
}

// Float returns the coerced amount and whether it is usable
func (p Price) Float() (float64, bool) {
	if !p.Valid {
		return 0, false
	}
	return p.Value.InexactFloat64(), true
}

// IsNull reports whether the backend sent no price at all
func (p Price) IsNull() bool {
	return p.Raw == "" && !p.Valid
}

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = Price{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*p = Price{}
			return nil
		}
		*p = NewPriceString(s)
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return err
	}
	*p = Price{Raw: string(data), Value: d, Valid: true}
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	if p.IsNull() {
		return []byte("null"), nil
	}
	if p.quoted {
		return json.Marshal(p.Raw)
	}
	return []byte(p.Raw), nil
}

// cleanPriceText drops currency decoration such as "$1,234.50"
func cleanPriceText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	return strings.ReplaceAll(s, ",", "")
}

// timestampLayouts are the formats the backend has been seen to send
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a backend timestamp. Unparseable values decode to the zero
// time rather than failing the whole record.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// PriceRecord is the result of one successful price lookup
type PriceRecord struct {
	CardName       string    `json:"card_name"`
	CardNumber     string    `json:"card_number"`
	CardRarity     string    `json:"card_rarity"`
	SetName        string    `json:"booster_set_name"`
	SetCode        string    `json:"set_code"`
	ArtVariant     string    `json:"card_art_variant"`
	SourceURL      string    `json:"source_url"`
	ImageURL       string    `json:"image_url"`
	ImageURLSmall  string    `json:"image_url_small"`
	TCGPrice       Price     `json:"tcg_price"`
	TCGMarketPrice Price     `json:"tcg_market_price"`
	LastUpdated    Timestamp `json:"last_price_updt"`
	ScrapeSuccess  bool      `json:"scrape_success"`

	// Derived from the non-null prices; nil when there are none
	AveragePrice *float64 `json:"average_price"`
	MedianPrice  *float64 `json:"median_price"`
	LowestPrice  *float64 `json:"lowest_price"`
	HighestPrice *float64 `json:"highest_price"`
	PriceRange   *float64 `json:"price_range"`
	Confidence   float64  `json:"confidence"`
	SourcesUsed  int      `json:"sources_used"`
}

// Prices returns the usable prices in source order (low, market)
func (r *PriceRecord) Prices() []float64 {
	var prices []float64
	for _, p := range []Price{r.TCGPrice, r.TCGMarketPrice} {
		if v, ok := p.Float(); ok {
			prices = append(prices, v)
		}
	}
	return prices
}

// ComputeAggregates fills the derived statistics from the record's prices.
// It is deterministic: the same prices always give the same aggregates.
func (r *PriceRecord) ComputeAggregates() {
	prices := r.Prices()
	r.SourcesUsed = len(prices)
	r.AveragePrice, r.MedianPrice, r.LowestPrice, r.HighestPrice, r.PriceRange = nil, nil, nil, nil, nil
	r.Confidence = 0.5
	if len(prices) == 0 {
		return
	}

	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	var sum float64
	for _, p := range sorted {
		sum += p
	}
	n := float64(len(sorted))
	mean := sum / n
	median := sorted[len(sorted)/2]
	lowest := sorted[0]
	highest := sorted[len(sorted)-1]
	spread := highest - lowest

	r.AveragePrice = &mean
	r.MedianPrice = &median
	r.LowestPrice = &lowest
	r.HighestPrice = &highest
	r.PriceRange = &spread

	if len(sorted) < 2 {
		return
	}
	var variance float64
	for _, p := range sorted {
		variance += (p - mean) * (p - mean)
	}
	stddev := math.Sqrt(variance / n)
	if mean <= 0 {
		r.Confidence = 0
		return
	}
	r.Confidence = clamp(1-stddev/mean, 0, 1)
}

// Clone returns a deep copy safe to hand to callers
func (r *PriceRecord) Clone() *PriceRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.AveragePrice = cloneFloat(r.AveragePrice)
	c.MedianPrice = cloneFloat(r.MedianPrice)
	c.LowestPrice = cloneFloat(r.LowestPrice)
	c.HighestPrice = cloneFloat(r.HighestPrice)
	c.PriceRange = cloneFloat(r.PriceRange)
	return &c
}

// PriceHistorySample is one entry in the rolling history of a fingerprint
type PriceHistorySample struct {
	Timestamp   time.Time `json:"timestamp"`
	Price       *float64  `json:"price"`
	Confidence  float64   `json:"confidence"`
	SourcesUsed int       `json:"sources_used"`
}

// SampleFromRecord captures the record's average at the given instant
func SampleFromRecord(r *PriceRecord, at time.Time) PriceHistorySample {
	return PriceHistorySample{
		Timestamp:   at,
		Price:       cloneFloat(r.AveragePrice),
		Confidence:  r.Confidence,
		SourcesUsed: r.SourcesUsed,
	}
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
