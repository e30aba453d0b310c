package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/internal/history"
	"github.com/mselser95/polymarket-updown/internal/locks"
	"github.com/mselser95/polymarket-updown/internal/positions"
	"github.com/mselser95/polymarket-updown/internal/pricefeed"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

type fakeMarkets struct {
	mu sync.Mutex
	m  types.Market
	ok bool
}

func (f *fakeMarkets) Current(string, string) (types.Market, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.m, f.ok
}

type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]types.Quote
}

// BestQuotes mirrors the cache contract: stale quotes are excluded.
func (f *fakeQuotes) BestQuotes(ids []string) map[string]types.Quote {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]types.Quote)
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok && !q.StaleBy(time.Now(), 10*time.Second) {
			out[id] = q
		}
	}

	return out
}

func (f *fakeQuotes) Quote(id string) (types.Quote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q, ok := f.quotes[id]

	return q, ok
}

type fakePrices struct {
	mu      sync.Mutex
	ref     float64
	closes  []float64
	candles []pricefeed.Candle
	refErr  error
}

func (f *fakePrices) ReferencePrice(context.Context, string, time.Time) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ref, f.refErr
}

func (f *fakePrices) RecentCandles(context.Context, string, int) ([]pricefeed.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.candles, nil
}

func (f *fakePrices) RecentCloses(context.Context, string, int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closes, nil
}

type fakeExec struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExec) SubmitBuy(context.Context, string, float64, float64, bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	f.calls++

	return fmt.Sprintf("order-%d", f.calls), nil
}

func (f *fakeExec) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type env struct {
	engine  *Engine
	markets *fakeMarkets
	quotes  *fakeQuotes
	prices  *fakePrices
	exec    *fakeExec
	tracker *positions.Tracker
	log     *history.Log
}

func baseStrategy() config.StrategyConfig {
	return config.StrategyConfig{
		Name:              "updown-1h",
		Enabled:           true,
		Symbols:           []string{"BTC"},
		Timeframe:         "1h",
		NotionalUsd:       100,
		MinProbability:    0.90,
		PriceBuffer:       0.02,
		EntryWindow:       10 * time.Minute,
		TickInterval:      5 * time.Second,
		Cooldown:          90 * time.Second,
		MinDelta:          600,
		BigMoveMultiplier: 2,
		RevertCount:       4,
		TrendCloses:       3,
	}
}

func upMarket(expiry time.Time) types.Market {
	return types.Market{
		ConditionID: "0xcond",
		Slug:        "btc-updown-1h-1735689600",
		Symbol:      "BTC",
		Timeframe:   "1h",
		UpTokenID:   "tok-up",
		DownTokenID: "tok-down",
		PriceToBeat: 100000,
		Expiry:      expiry,
	}
}

func newEnv(t *testing.T, cfg config.StrategyConfig) *env {
	t.Helper()

	logger := zaptest.NewLogger(t)

	table, err := locks.New(&locks.Config{TTL: 30 * time.Second, Grace: 5 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("locks.New() error = %v", err)
	}
	tracker, err := positions.New(&positions.Config{Retention: 48 * time.Hour, FailedRetryCooldown: time.Minute, Logger: logger})
	if err != nil {
		t.Fatalf("positions.New() error = %v", err)
	}
	log, err := history.New(&history.Config{Limit: 100, Logger: logger})
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	adaptive, err := NewThresholds(cfg.Name, cfg.MinDelta, cfg.BigMoveMultiplier, cfg.RevertCount, nil, logger)
	if err != nil {
		t.Fatalf("NewThresholds() error = %v", err)
	}

	e := &env{
		markets: &fakeMarkets{m: upMarket(time.Now().Add(5 * time.Minute)), ok: true},
		quotes: &fakeQuotes{quotes: map[string]types.Quote{
			"tok-up": {InstrumentID: "tok-up", BestBid: 0.94, BestBidSize: 200, BestAsk: 0.95, BestAskSize: 500, ObservedAt: time.Now()},
		}},
		prices:  &fakePrices{ref: 100700, closes: []float64{100400, 100500, 100600, 100650}},
		exec:    &fakeExec{},
		tracker: tracker,
		log:     log,
	}

	engine, err := NewEngine(&EngineConfig{
		Strategy:    cfg,
		QuoteMaxAge: 10 * time.Second,
		Markets:     e.markets,
		Quotes:      e.quotes,
		Prices:      e.prices,
		Exec:        e.exec,
		Locks:       table,
		Tracker:     tracker,
		History:     log,
		Adaptive:    adaptive,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	e.engine = engine

	return e
}

func TestEngine_EntryExecutes(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())

	e.engine.Tick(context.Background())

	if got := e.exec.submitted(); got != 1 {
		t.Fatalf("submitted orders = %d, want 1", got)
	}

	ordered := e.tracker.ByPhase(types.PhaseOrdered)
	if len(ordered) != 1 {
		t.Fatalf("ordered positions = %d, want 1", len(ordered))
	}
	pos := ordered[0]
	if pos.Side != types.SideUp {
		t.Errorf("side = %s, want up", pos.Side)
	}
	if want := 0.97; math.Abs(pos.EntryPrice-want) > 1e-9 {
		t.Errorf("entry price = %f, want %f (ask + buffer)", pos.EntryPrice, want)
	}
	if pos.Key != "0xcond:tok-up" {
		t.Errorf("key = %s", pos.Key)
	}

	recent := e.log.Recent(1)
	if len(recent) != 1 || recent[0].Action != types.ActionEntry || !recent[0].Succeeded() {
		t.Errorf("history entry = %+v, want succeeded entry", recent)
	}
}

func TestEngine_DeltaTooSmallSkips(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.prices.ref = 100500 // delta 500 < 600

	_, err := e.engine.evaluateAndRecord(context.Background(), e.engine.Config(), "BTC", false)

	reason, ok := types.IsSkip(err)
	if !ok || reason != types.SkipDeltaTooSmall {
		t.Fatalf("err = %v, want skip %s", err, types.SkipDeltaTooSmall)
	}
	if e.exec.submitted() != 0 {
		t.Error("no order should be submitted")
	}
}

func TestEngine_SkipReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(e *env)
		reason string
	}{
		{
			name:   "no_market",
			mutate: func(e *env) { e.markets.ok = false },
			reason: types.SkipNoMarket,
		},
		{
			name:   "outside_entry_window",
			mutate: func(e *env) { e.markets.m = upMarket(time.Now().Add(30 * time.Minute)) },
			reason: types.SkipOutsideWindow,
		},
		{
			name: "empty_book",
			mutate: func(e *env) {
				e.quotes.quotes["tok-up"] = types.Quote{InstrumentID: "tok-up", BestBid: 0.94, BestBidSize: 10, ObservedAt: time.Now()}
			},
			reason: types.SkipEmptyBook,
		},
		{
			name: "stale_quote",
			mutate: func(e *env) {
				e.quotes.quotes["tok-up"] = types.Quote{InstrumentID: "tok-up", BestAsk: 0.95, BestAskSize: 10, ObservedAt: time.Now().Add(-time.Minute)}
			},
			reason: types.SkipStaleQuote,
		},
		{
			name: "below_min_prob",
			mutate: func(e *env) {
				e.quotes.quotes["tok-up"] = types.Quote{InstrumentID: "tok-up", BestBid: 0.84, BestBidSize: 10, BestAsk: 0.85, BestAskSize: 10, ObservedAt: time.Now()}
			},
			reason: types.SkipBelowMinProb,
		},
		{
			name:   "trend_filter",
			mutate: func(e *env) { e.prices.closes = []float64{100650, 100600, 100500, 100400} },
			reason: types.SkipTrendFilter,
		},
		{
			name: "position_exists",
			mutate: func(e *env) {
				m := e.markets.m
				_ = e.tracker.Register(&types.Position{
					Key: m.PositionKey(types.SideUp), ConditionID: m.ConditionID,
					InstrumentID: m.UpTokenID, Symbol: "BTC", Side: types.SideUp,
					EntryPrice: 0.9, TotalSize: 10, Expiry: m.Expiry,
				})
			},
			reason: types.SkipPositionExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv(t, baseStrategy())
			tt.mutate(e)

			_, err := e.engine.evaluateAndRecord(context.Background(), e.engine.Config(), "BTC", false)

			reason, ok := types.IsSkip(err)
			if !ok || reason != tt.reason {
				t.Fatalf("err = %v, want skip %s", err, tt.reason)
			}
			if e.exec.submitted() != 0 {
				t.Error("no order should be submitted")
			}
		})
	}
}

func TestEngine_UnknownInstrumentIsEmptyBook(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	delete(e.quotes.quotes, "tok-up")

	_, err := e.engine.evaluateAndRecord(context.Background(), e.engine.Config(), "BTC", false)
	if reason, ok := types.IsSkip(err); !ok || reason != types.SkipEmptyBook {
		t.Fatalf("err = %v, want skip %s", err, types.SkipEmptyBook)
	}
}

func TestEngine_DuplicateHistoryGuard(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.log.Record(context.Background(), types.HistoryEntry{
		Strategy:    "updown-1h",
		Symbol:      "BTC",
		Action:      types.ActionEntry,
		PositionKey: "0xcond:tok-up",
		ConditionID: "0xcond",
		Outcome:     "ok",
	})

	_, err := e.engine.evaluateAndRecord(context.Background(), e.engine.Config(), "BTC", false)

	reason, ok := types.IsSkip(err)
	if !ok || reason != types.SkipDuplicate {
		t.Fatalf("err = %v, want skip %s", err, types.SkipDuplicate)
	}
}

func TestEngine_ConcurrentEntriesSingleOrdered(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.engine.Tick(context.Background())
		}()
	}
	wg.Wait()

	if got := e.exec.submitted(); got != 1 {
		t.Errorf("submitted orders = %d, want exactly 1", got)
	}
	if ordered := e.tracker.ByPhase(types.PhaseOrdered); len(ordered) != 1 {
		t.Errorf("ordered positions = %d, want exactly 1", len(ordered))
	}
}

func TestEngine_OrderFailureReleasesLockAsFailed(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.exec.err = &types.OrderError{Code: types.ErrNotEnoughBalance, Message: "not enough balance", Side: "BUY"}

	_, err := e.engine.evaluateAndRecord(context.Background(), e.engine.Config(), "BTC", false)

	var oe *types.OrderError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want OrderError", err)
	}
	if len(e.tracker.ByPhase(types.PhaseOrdered)) != 0 {
		t.Error("no position should be registered on failure")
	}

	recent := e.log.Recent(1)
	if len(recent) != 1 || recent[0].Outcome != "failed" {
		t.Errorf("history = %+v, want failed entry", recent)
	}
}

func TestEngine_ForceEntryBypassesGates(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.prices.ref = 100050                                      // delta 50, far below 600
	e.prices.closes = []float64{100650, 100600, 100500, 100400} // trend against

	pos, err := e.engine.ForceEntry(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("ForceEntry() error = %v", err)
	}
	if pos.Phase != types.PhaseOrdered {
		t.Errorf("phase = %s, want ordered", pos.Phase)
	}

	// Duplicate guards still apply.
	_, err = e.engine.ForceEntry(context.Background(), "BTC")
	if reason, ok := types.IsSkip(err); !ok || reason != types.SkipPositionExists {
		t.Fatalf("second ForceEntry() = %v, want skip %s", err, types.SkipPositionExists)
	}
}

func TestEngine_AdaptiveRatchetAndRevert(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.prices.ref = 101300                                       // delta 1300 >= 600*2
	e.prices.closes = []float64{100650, 100600, 100500, 100400} // trend blocks entry

	ctx := context.Background()
	cfg := e.engine.Config()

	_, err := e.engine.evaluateAndRecord(ctx, cfg, "BTC", false)
	if reason, ok := types.IsSkip(err); !ok || reason != types.SkipTrendFilter {
		t.Fatalf("err = %v, want trend skip", err)
	}

	state := e.engine.adaptive.State("BTC")
	if state.OverrideDelta != 1300 {
		t.Fatalf("override = %f, want 1300", state.OverrideDelta)
	}
	if state.NoBuyStreak != 1 {
		t.Fatalf("streak = %d, want 1", state.NoBuyStreak)
	}

	// Three more no-entry ticks reach the revert count.
	for i := 0; i < 3; i++ {
		_, _ = e.engine.evaluateAndRecord(ctx, cfg, "BTC", false)
	}

	state = e.engine.adaptive.State("BTC")
	if state.Active() {
		t.Errorf("override should be cleared after revert count, got %+v", state)
	}
	if got := e.engine.adaptive.Required("BTC"); got != 600 {
		t.Errorf("required = %f, want baseline 600", got)
	}
}

func TestEngine_SuccessfulEntryClearsOverride(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.prices.ref = 101300
	e.prices.closes = []float64{100400, 100500, 100600, 100650}

	e.engine.Tick(context.Background())

	if e.exec.submitted() != 1 {
		t.Fatal("entry should execute")
	}
	if state := e.engine.adaptive.State("BTC"); state.Active() {
		t.Errorf("override should clear on entry, got %+v", state)
	}
}

func TestEngine_StatusReflectsLastDecision(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.prices.ref = 100500

	e.engine.Tick(context.Background())

	st := e.engine.Status()
	if !st.Enabled {
		t.Error("status should report enabled")
	}
	d, ok := st.Decisions["BTC"]
	if !ok || d.Action != "skipped" || d.Reason != types.SkipDeltaTooSmall {
		t.Errorf("decision = %+v, want delta_too_small skip", d)
	}
}

func TestEngine_DisabledSkipsTick(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.engine.SetEnabled(false)

	e.engine.Tick(context.Background())

	if e.exec.submitted() != 0 {
		t.Error("disabled engine must not submit")
	}
}

type closedGate struct{}

func (closedGate) Enabled() bool { return false }

func TestEngine_GateClosedSkipsTick(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())
	e.engine.gate = closedGate{}

	e.engine.Tick(context.Background())

	if e.exec.submitted() != 0 {
		t.Error("closed gate must block submissions")
	}
}
