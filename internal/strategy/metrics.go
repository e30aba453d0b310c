package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EntriesTotal counts entry attempts by strategy and outcome.
	EntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_strategy_entries_total",
		Help: "Total number of entry attempts by strategy and outcome",
	}, []string{"strategy", "outcome"})

	// SkipsTotal counts business-rule skips by strategy and reason.
	SkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_strategy_skips_total",
		Help: "Total number of entry skips by strategy and reason",
	}, []string{"strategy", "reason"})

	// TickDuration tracks full-tick evaluation latency per strategy.
	TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "updown_strategy_tick_duration_seconds",
		Help:    "Duration of one strategy tick across all symbols",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	// OverrideGauge exposes the active adaptive-delta override per
	// strategy and symbol, zero while only the baseline applies.
	OverrideGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "updown_strategy_adaptive_override_delta",
		Help: "Active adaptive-delta override, zero when none",
	}, []string{"strategy", "symbol"})

	// RevertsTotal counts adaptive overrides cleared by the no-buy
	// streak.
	RevertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_strategy_adaptive_reverts_total",
		Help: "Total number of adaptive overrides reverted to baseline",
	}, []string{"strategy"})

	// LegsPlacedTotal counts split-entry legs placed per strategy.
	LegsPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_strategy_split_legs_total",
		Help: "Total number of split-entry legs placed",
	}, []string{"strategy"})
)
