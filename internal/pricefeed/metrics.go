package pricefeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchDuration tracks kline endpoint latency.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_pricefeed_fetch_duration_seconds",
		Help:    "Duration of kline fetches",
		Buckets: prometheus.DefBuckets,
	})

	// FetchErrorsTotal counts failed kline fetches.
	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_pricefeed_fetch_errors_total",
		Help: "Total number of failed kline fetches",
	})
)
