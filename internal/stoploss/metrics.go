package stoploss

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SellsTotal counts completed sell sequences by cut and outcome.
	SellsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_stoploss_sells_total",
		Help: "Total number of stop-loss sell sequences by cut and outcome",
	}, []string{"cut", "outcome"})

	// AttemptsTotal counts individual ladder rungs by name and outcome.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_stoploss_attempts_total",
		Help: "Total number of sell ladder attempts by rung and outcome",
	}, []string{"attempt", "outcome"})

	// SoldSize accumulates shares sold by the engine.
	SoldSize = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_stoploss_sold_size_total",
		Help: "Cumulative size sold across all positions",
	})

	// RestingOrders tracks GTC fallbacks currently on the book.
	RestingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_stoploss_resting_orders",
		Help: "Number of resting fallback orders being watched",
	})

	// CancelReplacesTotal counts resting orders cancelled for a bid
	// move or age.
	CancelReplacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_stoploss_cancel_replaces_total",
		Help: "Total number of resting orders cancelled for replacement",
	})

	// ExpiryFloorSkips counts positions left alone because the market
	// was inside the minimum seconds-to-expiry floor.
	ExpiryFloorSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_stoploss_expiry_floor_skips_total",
		Help: "Total number of evaluations skipped inside the expiry floor",
	})
)
