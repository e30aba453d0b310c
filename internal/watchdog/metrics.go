package watchdog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_watchdog_ticks_total",
		Help: "Watchdog check passes.",
	})

	StopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_watchdog_stops_total",
		Help: "Automation stops, by reason.",
	}, []string{"reason"})

	DataErrorStreak = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_watchdog_data_error_streak",
		Help: "Consecutive unhealthy data ticks.",
	})

	RunningGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_watchdog_running",
		Help: "1 while automation is armed, 0 after a stop.",
	})
)
