package services

import (
	"context"
	"sync"
	"time"

	"github.com/codyseavey/ygo-ripper/internal/models"
)

// Constants for price worker configuration
const (
	// defaultBatchSize is the number of cards to re-price per batch
	defaultBatchSize = 20
	// defaultStaleAfter is the age after which a stored price is refreshed
	defaultStaleAfter = 24 * time.Hour
	// lookupDelay is the pause between backend lookups of a batch
	lookupDelay = 100 * time.Millisecond
)

// PriceWorker re-prices session cards whose price is missing, failed or
// stale. It runs a batch on demand or on an interval.
type PriceWorker struct {
	sessions       *PackSessionService
	prices         *PriceLookupService
	updateInterval time.Duration
	mu             sync.RWMutex

	// Batch config
	batchSize  int
	staleAfter time.Duration
	delay      time.Duration

	// Stats
	cardsUpdated   int
	cardsFailed    int
	lastUpdateTime time.Time
}

type PriceWorkerStatus struct {
	LastUpdateTime time.Time `json:"last_update_time"`
	NextUpdateTime time.Time `json:"next_update_time"`
	CardsUpdated   int       `json:"cards_updated"`
	CardsFailed    int       `json:"cards_failed"`
	BatchSize      int       `json:"batch_size"`
}

func NewPriceWorker(sessions *PackSessionService, prices *PriceLookupService) *PriceWorker {
	return &PriceWorker{
		sessions:       sessions,
		prices:         prices,
		batchSize:      defaultBatchSize,
		staleAfter:     defaultStaleAfter,
		delay:          lookupDelay,
		updateInterval: 1 * time.Hour,
	}
}

// SetBatch changes how many cards a batch covers and the pause between lookups
func (w *PriceWorker) SetBatch(size int, delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if size > 0 {
		w.batchSize = size
	}
	w.delay = max(delay, 0)
}

// Start runs a batch now and then every interval until ctx is done
func (w *PriceWorker) Start(ctx context.Context) {
	infoLog("REPRICE", "Worker started: up to %d cards every %s", w.batchSize, w.updateInterval)

	if updated, err := w.UpdateBatch(ctx, ""); err != nil {
		infoLog("REPRICE", "Initial batch failed: %v", err)
	} else {
		infoLog("REPRICE", "Initial batch updated %d cards", updated)
	}

	ticker := time.NewTicker(w.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			infoLog("REPRICE", "Worker stopping")
			return
		case <-ticker.C:
			if updated, err := w.UpdateBatch(ctx, ""); err != nil {
				infoLog("REPRICE", "Batch failed: %v", err)
			} else if updated > 0 {
				infoLog("REPRICE", "Batch updated %d cards", updated)
			}
		}
	}
}

// UpdateBatch re-prices the cards that need it, oldest price first.
// Cards without a number or rarity cannot be priced and are skipped. An
// empty sessionID covers every session.
func (w *PriceWorker) UpdateBatch(ctx context.Context, sessionID string) (updated int, err error) {
	w.mu.RLock()
	batchSize, staleAfter, delay := w.batchSize, w.staleAfter, w.delay
	w.mu.RUnlock()

	cutoff := w.sessions.now().Add(-staleAfter)
	query := w.sessions.db.WithContext(ctx).
		Where("card_number <> '' AND rarity <> ''").
		Where("(priced_at IS NULL OR price_error <> '' OR priced_at < ?)", cutoff)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}

	var cards []models.SessionCard
	if err := query.Order("priced_at ASC NULLS FIRST").Limit(batchSize).Find(&cards).Error; err != nil {
		return 0, err
	}
	if len(cards) == 0 {
		debugLog("REPRICE", "No cards to update")
		return 0, nil
	}

	debugLog("REPRICE", "Updating prices for %d cards", len(cards))
	failed := 0
	for i := range cards {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return updated, ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := w.refresh(ctx, &cards[i], !cards[i].Stale(cutoff)); err != nil {
			failed++
			continue
		}
		updated++
	}

	w.mu.Lock()
	w.cardsUpdated += updated
	w.cardsFailed += failed
	w.lastUpdateTime = w.sessions.now()
	w.mu.Unlock()

	infoLog("REPRICE", "Updated %d of %d card prices", updated, len(cards))
	return updated, nil
}

// UpdateCard re-prices one card from the backend, bypassing the cache
func (w *PriceWorker) UpdateCard(ctx context.Context, cardID string) (*models.SessionCard, error) {
	var card models.SessionCard
	if err := w.sessions.db.WithContext(ctx).First(&card, "id = ?", cardID).Error; err != nil {
		return nil, ErrCardNotFound
	}
	if err := w.refresh(ctx, &card, false); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.cardsUpdated++
	w.mu.Unlock()

	infoLog("REPRICE", "Manually refreshed %s", card.CardName)
	return &card, nil
}

// refresh looks the card up and stores the outcome. Cards that were never
// priced or failed may be served from the cache; stale ones go to the
// backend.
func (w *PriceWorker) refresh(ctx context.Context, card *models.SessionCard, cacheOK bool) error {
	q := card.Query()
	q.ForceRefresh = !cacheOK
	res, err := w.prices.Lookup(ctx, q)
	if err != nil {
		infoLog("REPRICE", "Failed to price %s: %v", card.CardName, err)
		if rerr := w.sessions.RecordPriceError(ctx, card.ID, err); rerr != nil {
			debugLog("REPRICE", "Failed to record price error: %v", rerr)
		}
		return err
	}
	if err := w.sessions.ApplyPrice(ctx, card.ID, res.Record); err != nil {
		return err
	}
	card.ApplyPrice(res.Record, w.sessions.now())
	return nil
}

// GetStatus returns the current status
func (w *PriceWorker) GetStatus() PriceWorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	next := time.Time{}
	if !w.lastUpdateTime.IsZero() {
		next = w.lastUpdateTime.Add(w.updateInterval)
	}
	return PriceWorkerStatus{
		LastUpdateTime: w.lastUpdateTime,
		NextUpdateTime: next,
		CardsUpdated:   w.cardsUpdated,
		CardsFailed:    w.cardsFailed,
		BatchSize:      w.batchSize,
	}
}
