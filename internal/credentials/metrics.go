package credentials

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RotationsTotal counts successful rotations by reason.
	RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_credentials_rotations_total",
		Help: "Total number of credential rotations by reason",
	}, []string{"reason"})

	// ExhaustedTotal counts credentials marked exhausted by reason.
	ExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_credentials_exhausted_total",
		Help: "Total number of credentials marked exhausted by reason",
	}, []string{"reason"})

	// EligibleCredentials tracks credentials currently usable.
	EligibleCredentials = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_credentials_eligible",
		Help: "Number of credentials not currently exhausted",
	})

	// PoolSize tracks total pool size.
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_credentials_pool_size",
		Help: "Total number of credentials in the pool",
	})
)
