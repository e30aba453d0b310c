package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Tracker periodically polls wallet balances and venue positions and
// publishes them as Prometheus gauges.
type Tracker struct {
	client       *Client
	address      common.Address
	pollInterval time.Duration
	// winnerThreshold and dustSize mirror the drain's redeemable
	// filter so the gauge matches what the drain would submit.
	winnerThreshold float64
	dustSize        float64
	logger          *zap.Logger
}

// TrackerConfig holds tracker configuration.
type TrackerConfig struct {
	Client          *Client
	Address         common.Address
	PollInterval    time.Duration
	WinnerThreshold float64
	DustSize        float64
	Logger          *zap.Logger
}

// NewTracker validates cfg and builds the tracker.
func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Tracker{
		client:          cfg.Client,
		address:         cfg.Address,
		pollInterval:    cfg.PollInterval,
		winnerThreshold: cfg.WinnerThreshold,
		dustSize:        cfg.DustSize,
		logger:          cfg.Logger.With(zap.String("component", "wallet-tracker")),
	}, nil
}

// Run polls until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	if err := t.poll(ctx); err != nil {
		t.logger.Error("initial-poll-failed", zap.Error(err))
		UpdateErrorsTotal.Inc()
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")

			return ctx.Err()
		case <-ticker.C:
			if err := t.poll(ctx); err != nil {
				t.logger.Error("poll-failed", zap.Error(err))
				UpdateErrorsTotal.Inc()
			}
		}
	}
}

// poll performs a single polling cycle.
func (t *Tracker) poll(ctx context.Context) error {
	start := time.Now()
	defer func() { UpdateDuration.Observe(time.Since(start).Seconds()) }()

	balCtx, balCancel := context.WithTimeout(ctx, 15*time.Second)
	defer balCancel()

	balances, err := t.client.GetBalances(balCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	posCtx, posCancel := context.WithTimeout(ctx, 15*time.Second)
	defer posCancel()

	positions, err := t.client.RedeemablePositions(posCtx, t.address.Hex())
	if err != nil {
		return fmt.Errorf("get positions: %w", err)
	}

	t.updateMetrics(balances, positions)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	t.logger.Debug("poll-complete",
		zap.Int("position-count", len(positions)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// updateMetrics publishes one poll's results.
func (t *Tracker) updateMetrics(balances *Balances, positions []types.DataAPIPosition) {
	POLBalance.Set(balances.POLFloat())
	USDCeBalance.Set(balances.USDCeFloat())
	USDCNativeBalance.Set(balances.USDCNativeFloat())
	USDCAllowance.Set(balances.AllowanceFloat())

	totalValue, redeemable := 0.0, 0.0
	for i := range positions {
		value := positions[i].Size * positions[i].CurPrice
		totalValue += value
		if positions[i].Winning(t.winnerThreshold, t.dustSize) {
			redeemable += value
		}
	}

	VenuePositions.Set(float64(len(positions)))
	VenuePositionValue.Set(totalValue)
	RedeemableValue.Set(redeemable)
}
