package redeem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_redeem_submitted_total",
		Help: "Redemptions submitted, by execution method.",
	}, []string{"method"})

	ConfirmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "updown_redeem_confirmed_total",
		Help: "Redemptions confirmed, by whether a payout landed.",
	}, []string{"paid"})

	FailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_redeem_failed_total",
		Help: "Redemptions that failed at submission or reconciliation.",
	})

	ZeroPayoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_redeem_zero_payout_total",
		Help: "Confirmed redemptions whose receipt carried no USDC payout.",
	})

	PayoutUsd = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_redeem_payout_usd_total",
		Help: "Cumulative confirmed redemption payout in USDC.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_redeem_cycle_duration_seconds",
		Help:    "Wall time of one drain cycle.",
		Buckets: prometheus.DefBuckets,
	})
)
