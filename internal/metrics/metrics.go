package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ygo_ripper"

var (
	// Cache metrics, labelled by cache ("price", "image", "image_persistent")
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Cache reads served from a fresh entry.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Cache reads that found no fresh entry.",
	}, []string{"cache"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries removed by LRU pressure or expiry.",
	}, []string{"cache", "reason"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Current number of entries in each memory cache.",
	}, []string{"cache"})

	// Pricing backend metrics
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Requests to the pricing backend by route and status.",
	}, []string{"method", "route", "status"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backend_request_duration_seconds",
		Help:      "Pricing backend request latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method", "route"})

	BackendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_retries_total",
		Help:      "Price requests retried after a transport failure.",
	})

	// PriceLookups counts lookups by outcome: cache, remote, shared, invalid, error
	PriceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "price_lookups_total",
		Help:      "Price lookups by outcome.",
	}, []string{"outcome"})

	// ImageLoads counts image loads by source: memory, shared, persistent, download, placeholder
	ImageLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_loads_total",
		Help:      "Card image loads by the tier that served them.",
	}, []string{"source"})

	ImageDownloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "image_download_duration_seconds",
		Help:      "Card image download latency by route (proxy or direct).",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_errors_total",
		Help:      "Persistent storage failures by operation. They are logged and never surfaced.",
	}, []string{"op"})

	// Voice recognition metrics
	VoiceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_events_total",
		Help:      "Voice recognizer events delivered to consumers.",
	}, []string{"type"})

	VoiceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_errors_total",
		Help:      "Voice engine errors by kind, including silently retried ones.",
	}, []string{"kind"})

	VoiceRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_recoveries_total",
		Help:      "Recovery cycles started after a retryable voice error.",
	})

	VoiceSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voice_suppressed_results_total",
		Help:      "Results dropped by the confidence threshold or interim filter.",
	})

	// Ripper pipeline metrics
	RipperDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ripper_decisions_total",
		Help:      "Resolution decisions: auto_confirm, ambiguous, none, selected, rejected.",
	}, []string{"decision"})

	MatchScoreHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_top_score",
		Help:      "Top candidate score for each resolved transcript.",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
	})

	// Session metrics, refreshed by UpdateSessionMetrics
	SessionCardsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_cards_total",
		Help:      "Cards pulled in active pack sessions.",
	})

	SessionValueUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_value_usd",
		Help:      "Average-price value of cards in active pack sessions.",
	})

	SessionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Pack sessions by status.",
	}, []string{"status"})
)
