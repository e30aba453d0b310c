package positions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrackedTotal counts positions registered with the tracker.
	TrackedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_positions_tracked_total",
		Help: "Total number of positions registered with the tracker",
	})

	// TransitionsTotal counts phase transitions by from/to phase.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_positions_transitions_total",
		Help: "Total number of position phase transitions",
	}, []string{"from", "to"})

	// SweptTotal counts positions dropped by retention sweeps.
	SweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_positions_swept_total",
		Help: "Total number of positions dropped after the retention window",
	})

	// ActiveByPhase tracks currently tracked positions by phase.
	ActiveByPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "updown_positions_active",
		Help: "Number of tracked positions by phase",
	}, []string{"phase"})
)
