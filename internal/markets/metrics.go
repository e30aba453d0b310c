package markets

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshesTotal counts snapshot refreshes by outcome.
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_markets_refreshes_total",
		Help: "Total number of snapshot refreshes by outcome",
	}, []string{"status"})

	// ActiveMarkets tracks markets currently in the snapshot.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_markets_active",
		Help: "Number of unexpired markets in the snapshot",
	})

	// ResolveDuration tracks Gamma slug resolution latency.
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_markets_resolve_duration_seconds",
		Help:    "Duration of Gamma market resolution",
		Buckets: prometheus.DefBuckets,
	})

	// MetadataFetchDuration tracks metadata API fetch latency.
	MetadataFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_markets_metadata_fetch_duration_seconds",
		Help:    "Duration of metadata fetch from CLOB API",
		Buckets: prometheus.DefBuckets,
	})

	// MetadataFetchErrorsTotal tracks metadata fetch failures.
	MetadataFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_markets_metadata_fetch_errors_total",
		Help: "Total number of metadata fetch errors",
	})

	// MetadataCacheHitsTotal tracks cache hits for metadata.
	MetadataCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_markets_metadata_cache_hits_total",
		Help: "Total number of metadata cache hits",
	})

	// MetadataCacheMissesTotal tracks cache misses for metadata.
	MetadataCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_markets_metadata_cache_misses_total",
		Help: "Total number of metadata cache misses",
	})
)
