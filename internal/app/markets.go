package app

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// runInstrumentSync keeps the quote cache and the websocket feed
// pointed at the instruments of the currently active markets. Hourly
// markets roll over, so the set changes every window.
func (a *App) runInstrumentSync(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SnapshotRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.syncInstruments(ctx)
		}
	}
}

func (a *App) syncInstruments(ctx context.Context) {
	active := a.snapshot.ListActiveMarkets(ctx, nil, nil)

	ids := make([]string, 0, len(active)*2)
	for _, m := range active {
		if m.UpTokenID != "" {
			ids = append(ids, m.UpTokenID)
		}
		if m.DownTokenID != "" {
			ids = append(ids, m.DownTokenID)
		}
	}
	sort.Strings(ids)

	a.quoteCache.SetInstruments(ids)

	if a.wsManager != nil && a.wsManager.Connected() {
		if err := a.wsManager.SetInstruments(ctx, ids); err != nil {
			a.logger.Warn("websocket-subscription-sync-failed", zap.Error(err))
		}
	}

	a.logger.Debug("instrument-sync",
		zap.Int("markets", len(active)),
		zap.Int("instruments", len(ids)))
}

// runPositionSweep expires past-window positions and, when enabled,
// drops terminal positions past retention.
func (a *App) runPositionSweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if n := a.tracker.MarkExpired(now); n > 0 {
				a.logger.Info("positions-marked-expired", zap.Int("count", n))
			}
			if a.cfg.PositionSweepEnabled {
				if n := a.tracker.Sweep(now); n > 0 {
					a.logger.Info("positions-swept", zap.Int("count", n))
				}
			}
		}
	}
}
