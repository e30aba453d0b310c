package quotes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshesTotal counts book refreshes by outcome.
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_quotes_refreshes_total",
		Help: "Total number of quote refreshes by outcome",
	}, []string{"status"})

	// RefreshDuration tracks books endpoint latency.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_quotes_refresh_duration_seconds",
		Help:    "Duration of book fetches from the CLOB API",
		Buckets: prometheus.DefBuckets,
	})

	// WSUpdatesTotal counts quotes applied from WebSocket events.
	WSUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_quotes_ws_updates_total",
		Help: "Total number of quote updates applied from the market channel",
	})

	// StaleServedTotal counts quote reads rejected for staleness.
	StaleServedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_quotes_stale_rejected_total",
		Help: "Total number of quote reads excluded because the quote aged past the ceiling",
	})

	// TrackedInstruments tracks the polled instrument set size.
	TrackedInstruments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_quotes_tracked_instruments",
		Help: "Number of instruments in the polling set",
	})
)
