package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordedTotal counts recorded history entries by action.
	RecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_history_recorded_total",
		Help: "Total number of history entries recorded by action",
	}, []string{"action"})
)
