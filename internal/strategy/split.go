package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Scheduler staggers a strategy's notional across legs placed in the
// final minutes before expiry. Each leg passes the trend filter at its
// own tick; a failed gate skips only that leg. Legs share the position
// key and accumulate into one tracked position.
type Scheduler struct {
	engine *Engine
	logger *zap.Logger

	mu      sync.Mutex
	markets map[string]*legRecord // conditionID -> placed legs

	now func() time.Time
}

type legRecord struct {
	expiry time.Time
	placed map[int]bool
	side   types.Side // direction of the first placed leg, "" until one fills
}

// NewScheduler wraps a split-enabled engine.
func NewScheduler(engine *Engine, logger *zap.Logger) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if !engine.Config().SplitEntry.Enabled {
		return nil, fmt.Errorf("strategy %q has split entry disabled", engine.Name())
	}

	return &Scheduler{
		engine:  engine,
		logger:  logger.With(zap.String("component", "split-entry"), zap.String("strategy", engine.Name())),
		markets: make(map[string]*legRecord),
		now:     time.Now,
	}, nil
}

// Run ticks the scheduler until ctx is cancelled. Leg offsets are
// seconds-granular, so the scheduler ticks faster than the strategy.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	s.logger.Info("split-entry-started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("split-entry-stopped")

			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every due leg for every symbol once.
func (s *Scheduler) Tick(ctx context.Context) {
	e := s.engine
	if !e.Enabled() {
		return
	}
	if e.gate != nil && !e.gate.Enabled() {
		return
	}

	cfg := e.Config()
	now := s.now()
	s.prune(now)

	for _, symbol := range cfg.Symbols {
		market, ok := e.markets.Current(symbol, cfg.Timeframe)
		if !ok || market.Expired(now) {
			continue
		}

		for i, leg := range cfg.SplitEntry.Legs {
			if !s.legDue(market, i, leg, now) {
				continue
			}
			if err := s.placeLeg(ctx, cfg, market, i, leg); err != nil {
				if reason, skip := types.IsSkip(err); skip {
					SkipsTotal.WithLabelValues(cfg.Name, reason).Inc()
					s.logger.Debug("leg-skipped",
						zap.String("symbol", symbol),
						zap.Int("leg", i),
						zap.String("reason", reason))

					continue
				}
				s.logger.Warn("leg-error",
					zap.String("symbol", symbol), zap.Int("leg", i), zap.Error(err))
			}
		}
	}
}

// legDue reports whether leg i has entered its placement window and has
// not been placed yet.
func (s *Scheduler) legDue(market types.Market, i int, leg config.EntryLeg, now time.Time) bool {
	if market.Expiry.Sub(now).Seconds() > leg.SecondsBeforeExpiry {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.markets[market.ConditionID]
	if !ok {
		return true
	}

	return !rec.placed[i]
}

func (s *Scheduler) markPlaced(market types.Market, i int, side types.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.markets[market.ConditionID]
	if !ok {
		rec = &legRecord{expiry: market.Expiry, placed: make(map[int]bool)}
		s.markets[market.ConditionID] = rec
	}
	rec.placed[i] = true
	if rec.side == "" && side != "" {
		rec.side = side
	}
}

// pinnedSide returns the direction the market's first filled leg took.
func (s *Scheduler) pinnedSide(conditionID string) (types.Side, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.markets[conditionID]
	if !ok || rec.side == "" {
		return "", false
	}

	return rec.side, true
}

// placeLeg gates and places one leg. The first leg for a market runs
// the full entry sequence and registers the position; later legs
// accumulate into it under the same lock key.
func (s *Scheduler) placeLeg(ctx context.Context, cfg config.StrategyConfig, market types.Market, i int, leg config.EntryLeg) error {
	e := s.engine
	now := s.now()

	reference, err := e.prices.ReferencePrice(ctx, market.Symbol, now)
	if err != nil {
		return fmt.Errorf("fetch reference price for %s: %w", market.Symbol, err)
	}
	sig := ComputeSignal(market.Symbol, reference, market.PriceToBeat)

	// Later legs stay on the side the first leg bought. When the
	// reference price crosses back over the strike between legs, the
	// leg is dropped rather than opening an opposing position.
	if pinned, ok := s.pinnedSide(market.ConditionID); ok && pinned != sig.Direction {
		s.markSkippedLeg(market, i)

		return &types.SkipError{
			Reason: types.SkipSideFlip,
			Detail: fmt.Sprintf("holding %s, signal now %s", pinned, sig.Direction),
		}
	}

	if err := e.checkTrend(ctx, cfg, sig); err != nil {
		s.markSkippedLeg(market, i)

		return err
	}

	quote, err := e.decisionQuote(market.TokenID(sig.Direction), now)
	if err != nil {
		return err
	}
	if quote.BestAsk < cfg.MinProbability {
		s.markSkippedLeg(market, i)

		return &types.SkipError{
			Reason: types.SkipBelowMinProb,
			Detail: fmt.Sprintf("ask %.3f < %.3f", quote.BestAsk, cfg.MinProbability),
		}
	}

	notional := cfg.NotionalUsd * leg.Pct
	key := market.PositionKey(sig.Direction)

	if existing, tracked := e.tracker.Get(key); tracked && existing.Phase == types.PhaseOrdered {
		if err := s.accumulateLeg(ctx, cfg, market, sig.Direction, quote, key, notional, i); err != nil {
			return err
		}
	} else {
		pos, err := e.execute(ctx, cfg, market, sig.Direction, quote, notional)
		if err != nil {
			return err
		}
		s.logger.Info("leg-opened-position",
			zap.String("key", pos.Key), zap.Int("leg", i), zap.Float64("notional", notional))
	}

	s.markPlaced(market, i, sig.Direction)
	LegsPlacedTotal.WithLabelValues(cfg.Name).Inc()

	return nil
}

// markSkippedLeg consumes the leg so a failed gate skips it rather than
// retrying every second until the next leg.
func (s *Scheduler) markSkippedLeg(market types.Market, i int) {
	s.markPlaced(market, i, "")
}

// accumulateLeg adds a later leg to the tracked position under the
// per-key and global locks.
func (s *Scheduler) accumulateLeg(ctx context.Context, cfg config.StrategyConfig, market types.Market, side types.Side, quote types.Quote, key string, notional float64, i int) error {
	e := s.engine

	if !e.locks.Acquire(key) {
		return &types.SkipError{Reason: types.SkipLockHeld, Detail: key}
	}
	placed := false
	defer func() { e.locks.Release(key, placed) }()

	if err := e.locks.AcquireGlobal(ctx); err != nil {
		return err
	}
	defer e.locks.ReleaseGlobal()

	limit := min(quote.BestAsk+cfg.PriceBuffer, maxEntryPrice)
	size := notional / limit

	orderID, err := e.exec.SubmitBuy(ctx, market.TokenID(side), notional, limit, market.NegRisk)

	entry := types.HistoryEntry{
		Strategy:    cfg.Name,
		Symbol:      market.Symbol,
		Action:      types.ActionSplitLeg,
		PositionKey: key,
		ConditionID: market.ConditionID,
		OrderID:     orderID,
		Price:       limit,
		Size:        size,
		Detail:      fmt.Sprintf("leg %d", i),
	}
	if err != nil {
		entry.Outcome = "failed"
		entry.Detail = types.Summary(err)
		e.history.Record(ctx, entry)

		return fmt.Errorf("submit leg %d for %s: %w", i, key, err)
	}
	entry.Outcome = "ok"
	e.history.Record(ctx, entry)
	placed = true

	if err := e.tracker.Accumulate(key, size, limit); err != nil {
		e.logger.Error("leg-accumulate-failed", zap.String("key", key), zap.Error(err))
	}

	s.logger.Info("leg-accumulated",
		zap.String("key", key),
		zap.Int("leg", i),
		zap.Float64("limit", limit),
		zap.Float64("size", size),
		zap.String("order-id", orderID))

	return nil
}

// prune drops leg records for markets past expiry.
func (s *Scheduler) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.markets {
		if !rec.expiry.IsZero() && now.After(rec.expiry) {
			delete(s.markets, id)
		}
	}
}
