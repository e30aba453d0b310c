package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// POLBalance tracks the gas balance of the funding wallet.
	POLBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_pol_balance",
		Help: "Current POL balance (native units)",
	})

	// USDCeBalance tracks the bridged USDC trading balance.
	USDCeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_usdce_balance",
		Help: "Current USDC.e balance (USD)",
	})

	// USDCNativeBalance tracks the native USDC balance.
	USDCNativeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_usdc_native_balance",
		Help: "Current native USDC balance (USD)",
	})

	// USDCAllowance tracks the USDC.e allowance toward the CTF Exchange.
	USDCAllowance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_usdc_allowance",
		Help: "USDC.e allowance approved to the CTF Exchange (USD)",
	})

	// VenuePositions tracks the number of open venue positions.
	VenuePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_venue_positions",
		Help: "Number of open venue positions",
	})

	// VenuePositionValue tracks the sum of position current values.
	VenuePositionValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_venue_position_value",
		Help: "Sum of venue position current values (USD)",
	})

	// RedeemableValue tracks the value sitting in resolved positions.
	RedeemableValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_redeemable_value",
		Help: "Value of resolved, redeemable positions (USD)",
	})

	// UpdateErrorsTotal counts failed wallet polls.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "updown_wallet_update_errors_total",
		Help: "Failed wallet update attempts",
	})

	// UpdateDuration tracks the time taken to fetch wallet data.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "updown_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp is the Unix time of the last successful poll.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "updown_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
