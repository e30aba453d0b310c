package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts order submissions by side and outcome.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_execution_orders_total",
			Help: "Total number of order submissions by side and outcome",
		},
		[]string{"side", "status"},
	)

	// OrderSubmitDuration tracks order submission latency by side.
	OrderSubmitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "updown_execution_order_submit_duration_seconds",
		Help:    "Duration of order submissions to the CLOB",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// CancelsTotal counts successful order cancellations.
	CancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_execution_cancels_total",
		Help: "Total number of orders cancelled",
	})
)
