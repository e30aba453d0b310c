package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

type reconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
}

// reconnecter retries a connect function with jittered exponential
// backoff, resetting on success.
type reconnecter struct {
	config  reconnectConfig
	logger  *zap.Logger
	mu      sync.Mutex
	backoff time.Duration
}

func newReconnecter(cfg reconnectConfig, logger *zap.Logger) *reconnecter {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}

	return &reconnecter{
		config:  cfg,
		logger:  logger,
		backoff: cfg.InitialDelay,
	}
}

// Reconnect retries connect until it succeeds or ctx is cancelled.
func (r *reconnecter) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	for {
		delay := r.nextDelay()

		r.logger.Info("attempting-reconnection", zap.Duration("backoff", delay))
		ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		err := connect(ctx)
		if err == nil {
			r.Reset()
			return nil
		}

		r.logger.Warn("reconnection-attempt-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()

		r.grow()
	}
}

// Reset restores the backoff to the initial delay.
func (r *reconnecter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = r.config.InitialDelay
}

func (r *reconnecter) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	jitter := rand.Float64() * r.config.JitterPercent

	return time.Duration(float64(r.backoff) * (1.0 + jitter))
}

func (r *reconnecter) grow() {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := time.Duration(float64(r.backoff) * r.config.BackoffMultiplier)
	if next > r.config.MaxDelay {
		next = r.config.MaxDelay
	}
	r.backoff = next
}
