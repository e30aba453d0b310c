// Package strategy implements the entry decision engine: one generic
// runner per declared strategy, combining the market snapshot, quote
// cache, price reference and adaptive threshold into at most one buy
// per tick, guarded by locks and the duplicate-history check.
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/internal/pricefeed"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// maxEntryPrice caps the marketable buy limit; the venue rejects prices
// at or above 1.0.
const maxEntryPrice = 0.999

// guardLookback is how many recent closed candles feed the guard score.
const guardLookback = 10

// MarketSource supplies the current market per symbol/timeframe.
type MarketSource interface {
	Current(symbol, timeframe string) (types.Market, bool)
}

// QuoteSource supplies fresh top-of-book quotes, tolerant of partial
// results.
type QuoteSource interface {
	BestQuotes(instrumentIDs []string) map[string]types.Quote
	Quote(instrumentID string) (types.Quote, bool)
}

// PriceSource supplies reference prices and recent candles.
type PriceSource interface {
	ReferencePrice(ctx context.Context, symbol string, atOrBefore time.Time) (float64, error)
	RecentCandles(ctx context.Context, symbol string, minutes int) ([]pricefeed.Candle, error)
	RecentCloses(ctx context.Context, symbol string, minutes int) ([]float64, error)
}

// Submitter places marketable buys against the venue.
type Submitter interface {
	SubmitBuy(ctx context.Context, instrumentID string, notionalUsd, limitPrice float64, negRisk bool) (string, error)
}

// LockTable is the lock manager surface the engine holds across every
// submit-then-record sequence.
type LockTable interface {
	Acquire(key string) bool
	Release(key string, ok bool)
	AcquireGlobal(ctx context.Context) error
	ReleaseGlobal()
}

// PositionStore is the tracker surface the engine registers into.
type PositionStore interface {
	Register(p *types.Position) error
	Accumulate(key string, size, price float64) error
	Get(key string) (types.Position, bool)
	HasLiveFor(symbol string, expiry time.Time) bool
	LastExpiry(symbol string) time.Time
}

// Recorder appends to the bounded action history and answers the
// duplicate-entry guard.
type Recorder interface {
	Record(ctx context.Context, entry types.HistoryEntry) types.HistoryEntry
	HasEntryFor(positionKey string, within time.Duration) bool
}

// Gate reports whether automation may act; the watchdog owns it.
type Gate interface {
	Enabled() bool
}

// Decision is the engine's most recent verdict for one symbol, exposed
// on the status surface.
type Decision struct {
	At       time.Time `json:"at"`
	Symbol   string    `json:"symbol"`
	Action   string    `json:"action"` // entered, skipped, error
	Reason   string    `json:"reason,omitempty"`
	Delta    float64   `json:"delta,omitempty"`
	Required float64   `json:"required,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
}

// Status is the caller-facing view of one strategy runner.
type Status struct {
	Name      string                   `json:"name"`
	Enabled   bool                     `json:"enabled"`
	Symbols   []string                 `json:"symbols"`
	Timeframe string                   `json:"timeframe"`
	Decisions map[string]Decision      `json:"decisions"`
	Adaptive  map[string]AdaptiveState `json:"adaptive"`
}

// EngineConfig wires one strategy runner.
type EngineConfig struct {
	Strategy config.StrategyConfig
	// QuoteMaxAge is the staleness ceiling for decision quotes.
	QuoteMaxAge time.Duration
	Markets     MarketSource
	Quotes      QuoteSource
	Prices      PriceSource
	Exec        Submitter
	Locks       LockTable
	Tracker     PositionStore
	History     Recorder
	Adaptive    *Thresholds
	Gate        Gate
	Logger      *zap.Logger
}

// Engine is one generic strategy runner.
type Engine struct {
	quoteMaxAge time.Duration
	markets     MarketSource
	quotes      QuoteSource
	prices      PriceSource
	exec        Submitter
	locks       LockTable
	tracker     PositionStore
	history     Recorder
	adaptive    *Thresholds
	gate        Gate
	logger      *zap.Logger

	mu        sync.RWMutex
	cfg       config.StrategyConfig
	enabled   bool
	decisions map[string]Decision

	now func() time.Time
}

// NewEngine validates the wiring and returns a runner for one strategy.
func NewEngine(ec *EngineConfig) (*Engine, error) {
	if ec == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := ec.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}
	if ec.Markets == nil || ec.Quotes == nil || ec.Prices == nil {
		return nil, fmt.Errorf("market, quote and price sources are required")
	}
	if ec.Exec == nil {
		return nil, fmt.Errorf("execution client cannot be nil")
	}
	if ec.Locks == nil || ec.Tracker == nil || ec.History == nil {
		return nil, fmt.Errorf("locks, tracker and history are required")
	}
	if ec.Adaptive == nil {
		return nil, fmt.Errorf("adaptive thresholds cannot be nil")
	}
	if ec.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if ec.QuoteMaxAge <= 0 {
		ec.QuoteMaxAge = 10 * time.Second
	}

	return &Engine{
		quoteMaxAge: ec.QuoteMaxAge,
		markets:     ec.Markets,
		quotes:      ec.Quotes,
		prices:      ec.Prices,
		exec:        ec.Exec,
		locks:       ec.Locks,
		tracker:     ec.Tracker,
		history:     ec.History,
		adaptive:    ec.Adaptive,
		gate:        ec.Gate,
		logger:      ec.Logger.With(zap.String("component", "strategy"), zap.String("strategy", ec.Strategy.Name)),
		cfg:         ec.Strategy,
		enabled:     ec.Strategy.Enabled,
		decisions:   make(map[string]Decision),
		now:         time.Now,
	}, nil
}

// Name returns the strategy name.
func (e *Engine) Name() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.cfg.Name
}

// Enabled reports whether the runner is accepting ticks.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.enabled
}

// SetEnabled starts or stops the runner without tearing it down.
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enabled = on
	e.logger.Info("strategy-toggled", zap.Bool("enabled", on))
}

// UpdateConfig swaps the strategy parameters for subsequent ticks.
func (e *Engine) UpdateConfig(cfg config.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("strategy config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = cfg
	e.logger.Info("strategy-config-updated")

	return nil
}

// Config returns a copy of the current strategy parameters.
func (e *Engine) Config() config.StrategyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.cfg
}

// Status returns the caller-facing view of the runner.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	decisions := make(map[string]Decision, len(e.decisions))
	for sym, d := range e.decisions {
		decisions[sym] = d
	}

	return Status{
		Name:      e.cfg.Name,
		Enabled:   e.enabled,
		Symbols:   append([]string(nil), e.cfg.Symbols...),
		Timeframe: e.cfg.Timeframe,
		Decisions: decisions,
		Adaptive:  e.adaptive.Snapshot(),
	}
}

// Run ticks the runner until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	cfg := e.Config()
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("strategy-started",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("timeframe", cfg.Timeframe),
		zap.Duration("tick-interval", cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("strategy-stopped")

			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick evaluates every symbol once. Skips while the watchdog gate is
// closed or the runner is disabled.
func (e *Engine) Tick(ctx context.Context) {
	if !e.Enabled() {
		return
	}
	if e.gate != nil && !e.gate.Enabled() {
		return
	}

	cfg := e.Config()
	if cfg.SplitEntry.Enabled {
		// The split-entry scheduler owns placement for this strategy.
		return
	}
	start := e.now()

	for _, symbol := range cfg.Symbols {
		e.evaluateAndRecord(ctx, cfg, symbol, false)
	}

	TickDuration.WithLabelValues(cfg.Name).Observe(e.now().Sub(start).Seconds())
}

// ForceEntry places an entry for symbol bypassing the delta, trend and
// guard gates. Locks and duplicate guards still apply.
func (e *Engine) ForceEntry(ctx context.Context, symbol string) (types.Position, error) {
	cfg := e.Config()

	return e.evaluateAndRecord(ctx, cfg, symbol, true)
}

func (e *Engine) evaluateAndRecord(ctx context.Context, cfg config.StrategyConfig, symbol string, force bool) (types.Position, error) {
	pos, err := e.evaluate(ctx, cfg, symbol, force)

	d := Decision{At: e.now(), Symbol: symbol}
	switch {
	case err == nil:
		d.Action = "entered"
		d.OrderID = pos.OrderID
		EntriesTotal.WithLabelValues(cfg.Name, "ok").Inc()
	default:
		if reason, ok := types.IsSkip(err); ok {
			d.Action = "skipped"
			d.Reason = reason
			SkipsTotal.WithLabelValues(cfg.Name, reason).Inc()
			e.adaptive.RecordSkip(symbol)
			e.logger.Debug("entry-skipped",
				zap.String("symbol", symbol),
				zap.String("reason", reason))
		} else {
			d.Action = "error"
			d.Reason = types.Summary(err)
			EntriesTotal.WithLabelValues(cfg.Name, "error").Inc()
			e.logger.Warn("entry-error", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	e.mu.Lock()
	e.decisions[symbol] = d
	e.mu.Unlock()

	return pos, err
}

// evaluate runs the full gate sequence for one symbol and executes the
// buy when every gate passes.
func (e *Engine) evaluate(ctx context.Context, cfg config.StrategyConfig, symbol string, force bool) (types.Position, error) {
	now := e.now()

	market, ok := e.markets.Current(symbol, cfg.Timeframe)
	if !ok || market.Expired(now) {
		return types.Position{}, &types.SkipError{Reason: types.SkipNoMarket, Detail: symbol + "/" + cfg.Timeframe}
	}

	if !force {
		if until := market.Expiry.Sub(now); until > cfg.EntryWindow {
			return types.Position{}, &types.SkipError{
				Reason: types.SkipOutsideWindow,
				Detail: fmt.Sprintf("%.0fs to expiry", until.Seconds()),
			}
		}
		if last := e.tracker.LastExpiry(symbol); !last.IsZero() && now.Sub(last) < cfg.Cooldown {
			return types.Position{}, &types.SkipError{Reason: types.SkipCooldown}
		}
	}

	if e.tracker.HasLiveFor(symbol, market.Expiry) {
		return types.Position{}, &types.SkipError{Reason: types.SkipPositionExists}
	}

	reference, err := e.prices.ReferencePrice(ctx, symbol, now)
	if err != nil {
		return types.Position{}, fmt.Errorf("fetch reference price for %s: %w", symbol, err)
	}

	sig := ComputeSignal(symbol, reference, market.PriceToBeat)
	quote, err := e.decisionQuote(market.TokenID(sig.Direction), now)
	if err != nil {
		return types.Position{}, err
	}

	if !force {
		if quote.BestAsk < cfg.MinProbability {
			return types.Position{}, &types.SkipError{
				Reason: types.SkipBelowMinProb,
				Detail: fmt.Sprintf("ask %.3f < %.3f", quote.BestAsk, cfg.MinProbability),
			}
		}

		if cfg.MinDelta > 0 {
			required := e.adaptive.Required(symbol)
			if sig.Delta < required {
				e.adaptive.Observe(symbol, sig.Delta)

				return types.Position{}, &types.SkipError{
					Reason: types.SkipDeltaTooSmall,
					Detail: fmt.Sprintf("delta %.1f < %.1f", sig.Delta, required),
				}
			}
			e.adaptive.Observe(symbol, sig.Delta)

			if err := e.checkTrend(ctx, cfg, sig); err != nil {
				return types.Position{}, err
			}
			if err := e.checkGuard(ctx, cfg, sig, required); err != nil {
				return types.Position{}, err
			}
		} else if err := e.checkTrend(ctx, cfg, sig); err != nil {
			return types.Position{}, err
		}
	}

	return e.execute(ctx, cfg, market, sig.Direction, quote, cfg.NotionalUsd)
}

// decisionQuote returns a fresh top-of-book quote for the instrument,
// distinguishing an empty book from a stale one.
func (e *Engine) decisionQuote(instrumentID string, now time.Time) (types.Quote, error) {
	fresh := e.quotes.BestQuotes([]string{instrumentID})
	if q, ok := fresh[instrumentID]; ok {
		if !q.HasAsk() {
			return types.Quote{}, &types.SkipError{Reason: types.SkipEmptyBook, Detail: instrumentID}
		}

		return q, nil
	}

	if q, ok := e.quotes.Quote(instrumentID); ok && q.StaleBy(now, e.quoteMaxAge) {
		return types.Quote{}, &types.SkipError{Reason: types.SkipStaleQuote, Detail: instrumentID}
	}

	return types.Quote{}, &types.SkipError{Reason: types.SkipEmptyBook, Detail: instrumentID}
}

func (e *Engine) checkTrend(ctx context.Context, cfg config.StrategyConfig, sig Signal) error {
	if cfg.TrendCloses <= 0 {
		return nil
	}

	closes, err := e.prices.RecentCloses(ctx, sig.Symbol, cfg.TrendCloses+1)
	if err != nil {
		return fmt.Errorf("fetch recent closes for %s: %w", sig.Symbol, err)
	}

	if !TrendConfirmed(closes, sig.Reference, sig.Direction, cfg.TrendCloses) {
		return &types.SkipError{
			Reason: types.SkipTrendFilter,
			Detail: fmt.Sprintf("%d closes not %s", cfg.TrendCloses, sig.Direction),
		}
	}

	return nil
}

func (e *Engine) checkGuard(ctx context.Context, cfg config.StrategyConfig, sig Signal, required float64) error {
	if !cfg.Guard.Enabled {
		return nil
	}

	candles, err := e.prices.RecentCandles(ctx, sig.Symbol, guardLookback)
	if err != nil {
		return fmt.Errorf("fetch candles for %s: %w", sig.Symbol, err)
	}

	score, reasons := GuardScore(candles, sig.Direction, sig.Delta, required, cfg.Guard)
	if score > cfg.Guard.MaxScore {
		return &types.SkipError{
			Reason: types.SkipGuardScore,
			Detail: fmt.Sprintf("score %d: %v", score, reasons),
		}
	}

	return nil
}

// execute places the buy under the per-key and global locks, holding
// both across the full submit-then-record sequence, and registers the
// resulting position.
func (e *Engine) execute(ctx context.Context, cfg config.StrategyConfig, market types.Market, side types.Side, quote types.Quote, notionalUsd float64) (types.Position, error) {
	key := market.PositionKey(side)

	if e.history.HasEntryFor(key, cfg.EntryWindow) {
		return types.Position{}, &types.SkipError{Reason: types.SkipDuplicate, Detail: key}
	}
	if !e.locks.Acquire(key) {
		return types.Position{}, &types.SkipError{Reason: types.SkipLockHeld, Detail: key}
	}

	placed := false
	defer func() { e.locks.Release(key, placed) }()

	if err := e.locks.AcquireGlobal(ctx); err != nil {
		return types.Position{}, err
	}
	defer e.locks.ReleaseGlobal()

	limit := min(quote.BestAsk+cfg.PriceBuffer, maxEntryPrice)
	size := notionalUsd / limit

	orderID, err := e.exec.SubmitBuy(ctx, market.TokenID(side), notionalUsd, limit, market.NegRisk)

	entry := types.HistoryEntry{
		Strategy:    cfg.Name,
		Symbol:      market.Symbol,
		Action:      types.ActionEntry,
		PositionKey: key,
		ConditionID: market.ConditionID,
		OrderID:     orderID,
		Price:       limit,
		Size:        size,
	}
	if err != nil {
		entry.Outcome = "failed"
		entry.Detail = types.Summary(err)
		e.history.Record(ctx, entry)

		return types.Position{}, fmt.Errorf("submit buy for %s: %w", key, err)
	}
	entry.Outcome = "ok"
	e.history.Record(ctx, entry)
	placed = true

	pos := types.Position{
		Key:          key,
		ConditionID:  market.ConditionID,
		InstrumentID: market.TokenID(side),
		Strategy:     cfg.Name,
		Symbol:       market.Symbol,
		Timeframe:    market.Timeframe,
		Side:         side,
		EntryPrice:   limit,
		TotalSize:    size,
		CutsApplied:  types.CutNone,
		NegRisk:      market.NegRisk,
		Expiry:       market.Expiry,
		Phase:        types.PhaseOrdered,
		OrderedAt:    e.now(),
		OrderID:      orderID,
	}
	if err := e.tracker.Register(&pos); err != nil {
		// The order is live on the venue; surface the inconsistency
		// without pretending the entry failed.
		e.logger.Error("position-register-failed", zap.String("key", key), zap.Error(err))
	}

	e.adaptive.RecordEntry(market.Symbol)

	e.logger.Info("entry-placed",
		zap.String("key", key),
		zap.String("symbol", market.Symbol),
		zap.String("side", string(side)),
		zap.Float64("limit", limit),
		zap.Float64("size", size),
		zap.String("order-id", orderID))

	return pos, nil
}
