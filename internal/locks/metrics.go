package locks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AcquiredTotal tracks successful lock acquisitions.
	AcquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_locks_acquired_total",
		Help: "Total number of per-key locks acquired",
	})

	// AcquireContendedTotal tracks acquire attempts rejected by a held lock.
	AcquireContendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_locks_contended_total",
		Help: "Total number of acquire attempts rejected because the key was locked",
	})

	// ReleasedTotal tracks releases by resulting status.
	ReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_locks_released_total",
			Help: "Total number of lock releases",
		},
		[]string{"status"},
	)

	// SweptTotal tracks expired locks removed by the lazy sweep.
	SweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_locks_swept_total",
		Help: "Total number of expired locks swept",
	})

	// ActiveLocks tracks the current table size.
	ActiveLocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_locks_active",
		Help: "Current number of entries in the lock table",
	})

	// GlobalWaitSeconds tracks time spent waiting for the submission slot.
	GlobalWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_locks_global_wait_seconds",
		Help:    "Time spent waiting for the global submission slot",
		Buckets: prometheus.DefBuckets,
	})
)
