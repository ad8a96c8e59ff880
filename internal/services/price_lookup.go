package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/codyseavey/ygo-ripper/internal/config"
	"github.com/codyseavey/ygo-ripper/internal/metrics"
	"github.com/codyseavey/ygo-ripper/internal/models"
	"github.com/codyseavey/ygo-ripper/internal/retry"
	"github.com/codyseavey/ygo-ripper/internal/storage"
)

const (
	// PriceCacheKey holds the cache snapshot as an ordered list, oldest first
	PriceCacheKey = "priceCache"
	// PriceHistoryKey holds the rolling history of every fingerprint
	PriceHistoryKey = "priceHistory"

	// MaxHistorySamples bounds the history kept per fingerprint
	MaxHistorySamples = 30
	// historyFlushEvery is how many history appends trigger a flush
	historyFlushEvery = 5
)

// PriceFetcher is the remote side of a lookup
type PriceFetcher interface {
	FetchPrice(ctx context.Context, q models.CardQuery) (*models.PriceRecord, error)
	APIBase() string
}

// LookupResult is a price record and where it came from
type LookupResult struct {
	Record    *models.PriceRecord `json:"data"`
	FromCache bool                `json:"from_cache"`
	CacheAge  time.Duration       `json:"cache_age"`
}

// priceCacheEntry is one cached record. It is persisted as
// {value, insertedAt, expiresAt}.
type priceCacheEntry struct {
	Value      *models.PriceRecord `json:"value"`
	InsertedAt time.Time           `json:"insertedAt"`
	ExpiresAt  time.Time           `json:"expiresAt"`
}

// PriceCacheStats summarizes the price cache
type PriceCacheStats struct {
	Entries         int    `json:"entries"`
	MaxEntries      int    `json:"max_entries"`
	HistoryKeys     int    `json:"history_keys"`
	Writes          int    `json:"writes"`
	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	Enabled         bool   `json:"enabled"`
	SnapshotEveryN  int    `json:"snapshot_every_n"`
	LastPersistedAt string `json:"last_persisted_at,omitempty"`
}

// PriceLookupService serves price records with a TTL'd LRU cache, one
// remote call per fingerprint at a time, and a rolling price history.
// Cache and history survive restarts through the persistent store.
type PriceLookupService struct {
	cfg     config.Config
	client  PriceFetcher
	store   storage.Store
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time

	mu             sync.Mutex
	cache          *lru.Cache[string, *priceCacheEntry]
	history        map[string][]models.PriceHistorySample
	writes         int
	historyAppends int

	persistMu     sync.Mutex
	persistSeq    uint64
	persistedSeq  map[string]uint64
	lastPersisted time.Time

	hits   atomic.Uint64
	misses atomic.Uint64

	initOnce sync.Once
}

// NewPriceLookupService creates the service. Call Initialize to restore the
// persisted cache; lookups made before that start from an empty cache.
func NewPriceLookupService(cfg config.Config, client PriceFetcher, store storage.Store) *PriceLookupService {
	cfg.Normalize()
	cache, err := lru.New[string, *priceCacheEntry](cfg.MaxEntries)
	if err != nil {
		// Normalize guarantees a positive size
		panic(err)
	}
	return &PriceLookupService{
		cfg:          cfg,
		client:       client,
		store:        store,
		limiter:      rate.NewLimiter(rate.Inf, 0),
		now:          time.Now,
		cache:        cache,
		history:      make(map[string][]models.PriceHistorySample),
		persistedSeq: make(map[string]uint64),
	}
}

// SetClock replaces the time source. Tests only.
func (s *PriceLookupService) SetClock(now func() time.Time) {
	s.now = now
}

// Initialize restores the cache and history snapshots. It runs once;
// unreadable snapshots are logged and skipped.
func (s *PriceLookupService) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		if s.store == nil {
			return
		}
		s.restoreCache(ctx)
		s.restoreHistory(ctx)
	})
}

// Lookup returns the price record for the query, from cache when a fresh
// entry exists and from the backend otherwise. Concurrent lookups of the
// same fingerprint share one backend call.
func (s *PriceLookupService) Lookup(ctx context.Context, q models.CardQuery) (*LookupResult, error) {
	q = q.Normalize(s.cfg.DefaultCondition)
	if err := q.Validate(); err != nil {
		metrics.PriceLookups.WithLabelValues("invalid").Inc()
		return nil, invalidInput(err)
	}
	s.Initialize(ctx)

	fp := q.Fingerprint()
	if s.cfg.EnableCache && !q.ForceRefresh {
		if res, ok := s.cached(fp); ok {
			metrics.PriceLookups.WithLabelValues("cache").Inc()
			debugLog("PRICE", "Cache hit for %s (age %s)", fp, res.CacheAge.Round(time.Second))
			return res, nil
		}
	}

	// Admits everything; kept as the single place a budget would be enforced
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ch := s.group.DoChan(fp, func() (interface{}, error) {
		return s.fetch(context.WithoutCancel(ctx), fp, q)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			metrics.PriceLookups.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		outcome := "remote"
		if res.Shared {
			outcome = "shared"
		}
		metrics.PriceLookups.WithLabelValues(outcome).Inc()
		rec := res.Val.(*models.PriceRecord)
		return &LookupResult{Record: rec.Clone()}, nil
	}
}

// cached returns a clone of the fresh entry for fp, dropping a stale one
func (s *PriceLookupService) cached(fp string) (*LookupResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache.Get(fp)
	if !ok {
		s.recordMiss()
		return nil, false
	}

	now := s.now()
	age := now.Sub(entry.InsertedAt)
	if !now.Before(entry.ExpiresAt) || age > s.cfg.HardRefreshAfter() {
		s.cache.Remove(fp)
		metrics.CacheEvictions.WithLabelValues("price", "expired").Inc()
		metrics.CacheEntries.WithLabelValues("price").Set(float64(s.cache.Len()))
		s.recordMiss()
		return nil, false
	}

	s.hits.Add(1)
	metrics.CacheHits.WithLabelValues("price").Inc()
	return &LookupResult{Record: entry.Value.Clone(), FromCache: true, CacheAge: age}, true
}

func (s *PriceLookupService) recordMiss() {
	s.misses.Add(1)
	metrics.CacheMisses.WithLabelValues("price").Inc()
}

// fetch performs the remote call with retries and stores the result.
// ctx is already detached from the caller that started the flight.
func (s *PriceLookupService) fetch(ctx context.Context, fp string, q models.CardQuery) (*models.PriceRecord, error) {
	policy := retry.Policy(ctx, s.cfg.RetryBackoff(), 0, s.cfg.RetryAttempts)
	attempt := 0

	rec, err := backoff.RetryWithData(func() (*models.PriceRecord, error) {
		attempt++
		if attempt > 1 {
			metrics.BackendRetries.Inc()
			debugLog("PRICE", "Retry %d/%d for %s", attempt-1, s.cfg.RetryAttempts, fp)
		}

		reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
		defer cancel()

		rec, err := s.client.FetchPrice(reqCtx, q)
		if err == nil {
			return rec, nil
		}
		var be *BackendError
		if errors.As(err, &be) && be.Retryable() {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, policy)
	if err != nil {
		var be *BackendError
		if !errors.As(err, &be) {
			err = &BackendError{APIBase: s.client.APIBase(), Err: err}
		}
		infoLog("PRICE", "Lookup failed for %s after %d attempt(s): %v", fp, attempt, err)
		return nil, err
	}

	rec.ComputeAggregates()
	s.insert(ctx, fp, rec)
	return rec, nil
}

// insert caches a fresh record, appends its history sample and flushes the
// snapshots on their cadence
func (s *PriceLookupService) insert(ctx context.Context, fp string, rec *models.PriceRecord) {
	now := s.now()

	s.mu.Lock()
	var cacheSnap, historySnap []byte
	if s.cfg.EnableCache {
		evicted := s.cache.Add(fp, &priceCacheEntry{
			Value:      rec.Clone(),
			InsertedAt: now,
			ExpiresAt:  now.Add(s.cfg.TTL()),
		})
		if evicted {
			metrics.CacheEvictions.WithLabelValues("price", "lru").Inc()
		}
		metrics.CacheEntries.WithLabelValues("price").Set(float64(s.cache.Len()))
		s.writes++
		if s.writes%s.cfg.PersistEveryNWrites == 0 {
			cacheSnap = s.cacheSnapshotLocked()
		}
	}

	samples := append(s.history[fp], models.SampleFromRecord(rec, now))
	if len(samples) > MaxHistorySamples {
		samples = samples[len(samples)-MaxHistorySamples:]
	}
	s.history[fp] = samples
	s.historyAppends++
	if s.historyAppends%historyFlushEvery == 0 {
		historySnap = s.historySnapshotLocked()
	}
	seq := s.nextSeqLocked()
	s.mu.Unlock()

	if cacheSnap != nil {
		s.persist(ctx, PriceCacheKey, cacheSnap, seq)
	}
	if historySnap != nil {
		s.persist(ctx, PriceHistoryKey, historySnap, seq)
	}
}

func (s *PriceLookupService) nextSeqLocked() uint64 {
	s.persistSeq++
	return s.persistSeq
}

// persist writes a snapshot unless a newer one for the same key already
// landed. Failures are logged and swallowed.
func (s *PriceLookupService) persist(ctx context.Context, key string, data []byte, seq uint64) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if seq < s.persistedSeq[key] {
		return
	}
	if err := s.store.Set(ctx, key, string(data), 0); err != nil {
		infoLog("PRICE", "Failed to persist %s: %v", key, err)
		return
	}
	s.persistedSeq[key] = seq
	s.lastPersisted = s.now()
	debugLog("PRICE", "Persisted %s (%d bytes)", key, len(data))
}

func (s *PriceLookupService) cacheSnapshotLocked() []byte {
	keys := s.cache.Keys()
	pairs := make([]snapshotPair[*priceCacheEntry], 0, len(keys))
	for _, k := range keys {
		if e, ok := s.cache.Peek(k); ok {
			pairs = append(pairs, snapshotPair[*priceCacheEntry]{Key: k, Value: e})
		}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		infoLog("PRICE", "Failed to encode cache snapshot: %v", err)
		return nil
	}
	return data
}

func (s *PriceLookupService) historySnapshotLocked() []byte {
	pairs := make([]snapshotPair[[]models.PriceHistorySample], 0, len(s.history))
	for fp, samples := range s.history {
		pairs = append(pairs, snapshotPair[[]models.PriceHistorySample]{Key: fp, Value: samples})
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		infoLog("PRICE", "Failed to encode history snapshot: %v", err)
		return nil
	}
	return data
}

func (s *PriceLookupService) restoreCache(ctx context.Context) {
	raw, ok, err := s.store.Get(ctx, PriceCacheKey)
	if err != nil {
		infoLog("PRICE", "Failed to read cache snapshot: %v", err)
		return
	}
	if !ok {
		return
	}
	var pairs []snapshotPair[*priceCacheEntry]
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		infoLog("PRICE", "Ignoring unreadable cache snapshot: %v", err)
		return
	}

	now := s.now()
	restored := 0
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		if p.Value == nil || p.Value.Value == nil || !now.Before(p.Value.ExpiresAt) {
			continue
		}
		s.cache.Add(p.Key, p.Value)
		restored++
	}
	metrics.CacheEntries.WithLabelValues("price").Set(float64(s.cache.Len()))
	infoLog("PRICE", "Restored %d of %d cached prices", restored, len(pairs))
}

func (s *PriceLookupService) restoreHistory(ctx context.Context) {
	raw, ok, err := s.store.Get(ctx, PriceHistoryKey)
	if err != nil {
		infoLog("PRICE", "Failed to read price history: %v", err)
		return
	}
	if !ok {
		return
	}
	var pairs []snapshotPair[[]models.PriceHistorySample]
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		infoLog("PRICE", "Ignoring unreadable price history: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		samples := p.Value
		if len(samples) > MaxHistorySamples {
			samples = samples[len(samples)-MaxHistorySamples:]
		}
		s.history[p.Key] = samples
	}
}

// History returns the recorded samples for the query, oldest first
func (s *PriceLookupService) History(q models.CardQuery) []models.PriceHistorySample {
	fp := q.Normalize(s.cfg.DefaultCondition).Fingerprint()
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PriceHistorySample(nil), s.history[fp]...)
}

// ClearCache drops every cached record and the history, in memory and in
// the persistent store
func (s *PriceLookupService) ClearCache(ctx context.Context) {
	s.mu.Lock()
	s.cache.Purge()
	s.history = make(map[string][]models.PriceHistorySample)
	s.writes = 0
	s.historyAppends = 0
	seq := s.nextSeqLocked()
	s.mu.Unlock()
	metrics.CacheEntries.WithLabelValues("price").Set(0)

	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	for _, key := range []string{PriceCacheKey, PriceHistoryKey} {
		if err := s.store.Delete(ctx, key); err != nil {
			infoLog("PRICE", "Failed to clear %s: %v", key, err)
			continue
		}
		s.persistedSeq[key] = seq
	}
	infoLog("PRICE", "Cache cleared")
}

// Flush persists both snapshots now, regardless of cadence
func (s *PriceLookupService) Flush(ctx context.Context) {
	s.mu.Lock()
	var cacheSnap []byte
	if s.cfg.EnableCache {
		cacheSnap = s.cacheSnapshotLocked()
	}
	historySnap := s.historySnapshotLocked()
	seq := s.nextSeqLocked()
	s.mu.Unlock()

	if cacheSnap != nil {
		s.persist(ctx, PriceCacheKey, cacheSnap, seq)
	}
	if historySnap != nil {
		s.persist(ctx, PriceHistoryKey, historySnap, seq)
	}
}

// Stats returns cache counters
func (s *PriceLookupService) Stats() PriceCacheStats {
	s.mu.Lock()
	stats := PriceCacheStats{
		Entries:        s.cache.Len(),
		MaxEntries:     s.cfg.MaxEntries,
		HistoryKeys:    len(s.history),
		Writes:         s.writes,
		Enabled:        s.cfg.EnableCache,
		SnapshotEveryN: s.cfg.PersistEveryNWrites,
	}
	s.mu.Unlock()

	stats.Hits = s.hits.Load()
	stats.Misses = s.misses.Load()
	s.persistMu.Lock()
	if !s.lastPersisted.IsZero() {
		stats.LastPersistedAt = s.lastPersisted.Format(time.RFC3339)
	}
	s.persistMu.Unlock()
	return stats
}

// snapshotPair encodes as a two element JSON array [key, value]
type snapshotPair[V any] struct {
	Key   string
	Value V
}

func (p snapshotPair[V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Key, p.Value})
}

func (p *snapshotPair[V]) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("snapshot pair has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Key); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Value)
}
