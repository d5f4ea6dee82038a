// Package metrics exposes the core's prometheus instrumentation. Wiring an
// HTTP /metrics endpoint is a host/transport concern (out of scope per
// spec §1); this package only owns the collectors and the few call sites
// that update them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CacheHits/CacheMisses are labeled by cache name (e.g. "feature_memory",
	// "feature_similarity").
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiio",
		Name:      "cache_hits_total",
		Help:      "Cache lookups that found a value.",
	}, []string{"cache"})

	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiio",
		Name:      "cache_misses_total",
		Help:      "Cache lookups that found nothing.",
	}, []string{"cache"})

	ProviderFetchSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "audiio",
		Name:      "provider_fetch_seconds",
		Help:      "Latency of a single FeatureProvider call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "outcome"})

	ScoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "audiio",
		Name:      "score_track_seconds",
		Help:      "Latency of Orchestrator.ScoreTrack.",
		Buckets:   prometheus.DefBuckets,
	})

	TrainingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "audiio",
		Name:      "training_duration_seconds",
		Help:      "Wall time of a completed training run.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	TrainingFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "audiio",
		Name:      "training_failures_total",
		Help:      "Training runs that returned success=false.",
	})

	EventsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audiio",
		Name:      "events_recorded_total",
		Help:      "UserEvents recorded, labeled by kind.",
	}, []string{"kind"})
)

// Registry is a dedicated prometheus registry so embedding this package
// into a host process never collides with its own metric names. Hosts
// that want these on their default registry can re-register the
// collectors there instead.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		CacheHits,
		CacheMisses,
		ProviderFetchSeconds,
		ScoreDuration,
		TrainingDuration,
		TrainingFailures,
		EventsRecorded,
	)
}
