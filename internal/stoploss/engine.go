// Package stoploss executes the two-tier cut schedule over tracked
// positions: partial sells on price drops below the entry, a top-up or
// escalation when the required size undershoots the venue minimum, a
// tiered sell ladder ending in a watched resting order, and a floor on
// seconds-to-expiry below which nothing more is attempted.
package stoploss

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/internal/execution"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// defaultTickSize applies when the metadata source cannot answer.
const defaultTickSize = 0.01

// Seller is the execution surface the engine sells through.
type Seller interface {
	SubmitSell(ctx context.Context, instrumentID string, size, price float64, tif execution.TimeInForce, negRisk bool) (string, error)
	OrderStatus(ctx context.Context, orderID string) (*types.OrderQueryResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// QuoteSource supplies fresh top-of-book quotes.
type QuoteSource interface {
	BestQuotes(instrumentIDs []string) map[string]types.Quote
}

// PositionStore is the tracker surface the engine reads and updates.
type PositionStore interface {
	ActiveForStopLoss(strategy string) []types.Position
	ApplySell(key string, size float64, cut types.Cut) error
	Get(key string) (types.Position, bool)
}

// LockTable coordinates sells with the entry and redeem paths.
type LockTable interface {
	Acquire(key string) bool
	Release(key string, ok bool)
	AcquireGlobal(ctx context.Context) error
	ReleaseGlobal()
}

// Recorder appends attempts to the action history.
type Recorder interface {
	Record(ctx context.Context, entry types.HistoryEntry) types.HistoryEntry
}

// MetadataSource answers per-instrument tick size and minimum order
// size; the ristretto-backed metadata cache implements it.
type MetadataSource interface {
	GetTokenMetadata(ctx context.Context, tokenID string) (tickSize, minOrderSize float64, err error)
}

// Gate reports whether automation may act.
type Gate interface {
	Enabled() bool
}

// Config wires the engine for one strategy.
type Config struct {
	Strategy string
	StopLoss config.StopLossConfig
	Exec     Seller
	Quotes   QuoteSource
	Tracker  PositionStore
	Locks    LockTable
	History  Recorder
	Metadata MetadataSource
	Gate     Gate
	Logger   *zap.Logger
}

// Engine runs the stop-loss schedule for one strategy.
type Engine struct {
	strategy string
	cfg      config.StopLossConfig
	exec     Seller
	quotes   QuoteSource
	tracker  PositionStore
	locks    LockTable
	history  Recorder
	metadata MetadataSource
	gate     Gate
	logger   *zap.Logger

	mu      sync.Mutex
	resting map[string]*RestingOrder // position key -> watched order

	now func() time.Time
}

// New validates the wiring and returns the engine.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Strategy == "" {
		return nil, fmt.Errorf("strategy name cannot be empty")
	}
	if !cfg.StopLoss.Enabled {
		return nil, fmt.Errorf("stop loss disabled for strategy %q", cfg.Strategy)
	}
	if cfg.Exec == nil || cfg.Quotes == nil || cfg.Tracker == nil {
		return nil, fmt.Errorf("exec, quotes and tracker are required")
	}
	if cfg.Locks == nil || cfg.History == nil {
		return nil, fmt.Errorf("locks and history are required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Engine{
		strategy: cfg.Strategy,
		cfg:      cfg.StopLoss,
		exec:     cfg.Exec,
		quotes:   cfg.Quotes,
		tracker:  cfg.Tracker,
		locks:    cfg.Locks,
		history:  cfg.History,
		metadata: cfg.Metadata,
		gate:     cfg.Gate,
		logger:   cfg.Logger.With(zap.String("component", "stoploss"), zap.String("strategy", cfg.Strategy)),
		resting:  make(map[string]*RestingOrder),
		now:      time.Now,
	}, nil
}

// Run ticks the engine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Info("stoploss-started",
		zap.Float64("cut1-cents", e.cfg.Cut1Cents),
		zap.Float64("cut2-cents", e.cfg.Cut2Cents),
		zap.Duration("interval", e.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stoploss-stopped")

			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick manages resting orders first, then evaluates every active
// position against the cut schedule.
func (e *Engine) Tick(ctx context.Context) {
	if e.gate != nil && !e.gate.Enabled() {
		return
	}

	now := e.now()

	for _, pos := range e.tracker.ActiveForStopLoss(e.strategy) {
		quote, ok := e.quotes.BestQuotes([]string{pos.InstrumentID})[pos.InstrumentID]
		if !ok || !quote.HasBid() {
			continue
		}
		tick, minSize := e.instrumentLimits(ctx, pos.InstrumentID)

		if e.manageResting(ctx, &pos, quote.BestBid, tick) {
			// A resting order is working this position; leave the
			// schedule alone until it resolves.
			continue
		}
		// A settled resting order may have just booked a fill.
		if fresh, ok := e.tracker.Get(pos.Key); ok {
			pos = fresh
		}

		if pos.SecondsToExpiry(now) < e.cfg.MinSecondsToExpiry {
			ExpiryFloorSkips.Inc()

			continue
		}

		e.evaluate(ctx, &pos, quote.BestBid, tick, minSize)
	}
}

// instrumentLimits resolves tick size and minimum order size, falling
// back to configured defaults when metadata is unavailable.
func (e *Engine) instrumentLimits(ctx context.Context, instrumentID string) (tick, minSize float64) {
	tick, minSize = defaultTickSize, e.cfg.MinOrderSize
	if e.metadata == nil {
		return tick, minSize
	}

	mTick, mMin, err := e.metadata.GetTokenMetadata(ctx, instrumentID)
	if err != nil {
		return tick, minSize
	}
	if mTick > 0 {
		tick = mTick
	}
	if mMin > minSize {
		minSize = mMin
	}

	return tick, minSize
}

// evaluate applies the cut schedule to one position at the current bid.
func (e *Engine) evaluate(ctx context.Context, pos *types.Position, bid, tick, minSize float64) {
	cut, targetPct := e.targetCut(pos, bid)
	if cut == types.CutNone {
		return
	}

	size, escalatedPct := e.sellSize(pos, cut, targetPct, minSize)
	if size <= 0 {
		return
	}

	e.executeSell(ctx, pos, bid, tick, size, cut, escalatedPct)
}

// targetCut picks the deepest breached cut whose cumulative target is
// not yet met. Cut2 dominates cut1.
func (e *Engine) targetCut(pos *types.Position, bid float64) (types.Cut, float64) {
	cut1Price := pos.EntryPrice - e.cfg.Cut1Cents/100
	cut2Price := pos.EntryPrice - e.cfg.Cut2Cents/100
	soldPct := pos.SoldPct()

	switch {
	case bid <= cut2Price+1e-12 && soldPct < e.cfg.Cut2TargetPct:
		return types.Cut2, e.cfg.Cut2TargetPct
	case bid <= cut1Price+1e-12 && soldPct < e.cfg.Cut1TargetPct:
		return types.Cut1, e.cfg.Cut1TargetPct
	default:
		return types.CutNone, 0
	}
}

// sellSize computes the required size for the target, topping up to the
// venue minimum from remaining inventory or escalating cut1 to the cut2
// target when the remainder cannot carry a minimum-size order.
func (e *Engine) sellSize(pos *types.Position, cut types.Cut, targetPct, minSize float64) (float64, float64) {
	remaining := pos.RemainingSize()
	required := targetPct*pos.TotalSize - pos.SoldSize

	if required >= minSize {
		return min(required, remaining), targetPct
	}

	// Below the venue minimum: top up when inventory allows.
	if remaining >= minSize {
		if cut == types.Cut1 {
			// Escalating to the cut2 target beats overselling cut1
			// when even the topped-up size would land there anyway.
			escalated := e.cfg.Cut2TargetPct*pos.TotalSize - pos.SoldSize
			if escalated > minSize {
				return min(escalated, remaining), e.cfg.Cut2TargetPct
			}
		}

		return minSize, targetPct
	}

	// The whole remainder is under the minimum; close it out and let
	// the venue arbitrate.
	return remaining, 1
}

// executeSell runs the ladder for one sell under the per-key and global
// locks, holding both across the full submit-then-record sequence.
func (e *Engine) executeSell(ctx context.Context, pos *types.Position, bid, tick, size float64, cut types.Cut, targetPct float64) {
	if !e.locks.Acquire(pos.Key) {
		return
	}
	sold := false
	defer func() { e.locks.Release(pos.Key, sold) }()

	if err := e.locks.AcquireGlobal(ctx); err != nil {
		return
	}
	defer e.locks.ReleaseGlobal()

	remainingToTarget := targetPct*pos.TotalSize - pos.SoldSize

	f, resting, err := e.runLadder(ctx, pos, size, cut, ladder(bid, tick))
	switch {
	case err != nil:
		SellsTotal.WithLabelValues(string(cut), "failed").Inc()
		e.record(ctx, pos, types.HistoryEntry{
			Action:  types.ActionStopSell,
			Outcome: "failed",
			Detail:  fmt.Sprintf("target %s %.0f%%, remaining %.2f: %s", cut, targetPct*100, remainingToTarget, types.Summary(err)),
			Size:    size,
		})
		e.logger.Warn("stop-sell-failed",
			zap.String("key", pos.Key), zap.String("cut", string(cut)), zap.Error(err))

	case resting != nil:
		e.mu.Lock()
		e.resting[pos.Key] = resting
		e.mu.Unlock()
		RestingOrders.Set(float64(e.restingCount()))
		sold = true
		e.record(ctx, pos, types.HistoryEntry{
			Action:  types.ActionStopSell,
			Outcome: "ok",
			OrderID: resting.OrderID,
			Detail:  fmt.Sprintf("resting at %.3f, target %s %.0f%%, remaining %.2f", resting.Price, cut, targetPct*100, remainingToTarget),
			Price:   resting.Price,
			Size:    resting.Size,
		})
		e.logger.Info("stop-sell-resting",
			zap.String("key", pos.Key),
			zap.String("order-id", resting.OrderID),
			zap.Float64("price", resting.Price),
			zap.Float64("size", resting.Size))

	default:
		sold = true
		if err := e.tracker.ApplySell(pos.Key, f.size, cut); err != nil {
			e.logger.Error("apply-sell-failed", zap.String("key", pos.Key), zap.Error(err))
		}
		SellsTotal.WithLabelValues(string(cut), "ok").Inc()
		SoldSize.Add(f.size)
		e.record(ctx, pos, types.HistoryEntry{
			Action:  types.ActionStopSell,
			Outcome: "ok",
			OrderID: f.orderID,
			Detail:  fmt.Sprintf("target %s %.0f%%, remaining %.2f", cut, targetPct*100, remainingToTarget-f.size),
			Price:   f.price,
			Size:    f.size,
		})
		e.logger.Info("stop-sell-filled",
			zap.String("key", pos.Key),
			zap.String("cut", string(cut)),
			zap.Float64("price", f.price),
			zap.Float64("size", f.size))
	}
}

// manageResting reconciles the watched resting order for pos, if any.
// Returns true while one is still working the position.
func (e *Engine) manageResting(ctx context.Context, pos *types.Position, bid, tick float64) bool {
	e.mu.Lock()
	r, ok := e.resting[pos.Key]
	e.mu.Unlock()
	if !ok {
		return false
	}

	status, err := e.exec.OrderStatus(ctx, r.OrderID)
	if err != nil {
		e.logger.Warn("resting-status-failed", zap.String("order-id", r.OrderID), zap.Error(err))

		return true
	}

	filled := status.SizeFilled
	if filled > r.Size {
		filled = r.Size
	}

	if status.Remaining() <= 1e-9 || filled >= r.Size-1e-9 {
		e.settleResting(ctx, pos, r, filled, "filled")

		return false
	}

	now := e.now()
	if !r.moved(bid, tick) && !r.aged(now, e.cfg.RestingMaxAge) {
		return true
	}

	// Cancel, book the partial, and let the next evaluation replace it
	// at the fresh bid.
	if err := e.exec.CancelOrder(ctx, r.OrderID); err != nil {
		e.logger.Warn("resting-cancel-failed", zap.String("order-id", r.OrderID), zap.Error(err))

		return true
	}
	CancelReplacesTotal.Inc()
	e.settleResting(ctx, pos, r, filled, fmt.Sprintf("cancelled after %.0fs, bid %.3f", now.Sub(r.PlacedAt).Seconds(), bid))

	return false
}

// settleResting books the filled part of a resting order and drops it
// from the watch set.
func (e *Engine) settleResting(ctx context.Context, pos *types.Position, r *RestingOrder, filled float64, detail string) {
	if filled > 0 {
		if err := e.tracker.ApplySell(r.Key, filled, r.Cut); err != nil {
			e.logger.Error("apply-sell-failed", zap.String("key", r.Key), zap.Error(err))
		}
		SoldSize.Add(filled)
	}

	e.mu.Lock()
	delete(e.resting, r.Key)
	e.mu.Unlock()
	RestingOrders.Set(float64(e.restingCount()))

	e.record(ctx, pos, types.HistoryEntry{
		Action:  types.ActionCancelReplace,
		Outcome: "ok",
		OrderID: r.OrderID,
		Detail:  detail,
		Price:   r.Price,
		Size:    filled,
	})

	e.logger.Info("resting-settled",
		zap.String("key", r.Key),
		zap.String("order-id", r.OrderID),
		zap.Float64("filled", filled),
		zap.String("detail", detail))
}

// Resting lists the watched resting orders for status surfaces.
func (e *Engine) Resting() []RestingOrder {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]RestingOrder, 0, len(e.resting))
	for _, r := range e.resting {
		out = append(out, *r)
	}

	return out
}

func (e *Engine) restingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.resting)
}

func (e *Engine) record(ctx context.Context, pos *types.Position, entry types.HistoryEntry) {
	if e.history == nil {
		return
	}
	entry.Strategy = e.strategy
	entry.Symbol = pos.Symbol
	entry.PositionKey = pos.Key
	entry.ConditionID = pos.ConditionID
	e.history.Record(ctx, entry)
}
