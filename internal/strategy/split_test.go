package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/internal/locks"
	"github.com/mselser95/polymarket-updown/pkg/config"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

func splitStrategy() config.StrategyConfig {
	cfg := baseStrategy()
	cfg.MinDelta = 0 // legs gate on trend only
	cfg.SplitEntry = config.SplitEntryConfig{
		Enabled: true,
		Legs: []config.EntryLeg{
			{Pct: 0.5, SecondsBeforeExpiry: 600},
			{Pct: 0.5, SecondsBeforeExpiry: 300},
		},
	}

	return cfg
}

func newSplitEnv(t *testing.T) (*env, *Scheduler, time.Time) {
	t.Helper()

	e := newEnv(t, splitStrategy())
	t0 := time.Now()
	e.markets.m = upMarket(t0.Add(400 * time.Second))

	// Legs for one key arrive minutes apart; drop the release grace so
	// a later leg can reacquire within the test.
	table, err := locks.New(&locks.Config{TTL: 30 * time.Second, Grace: 0, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("locks.New() error = %v", err)
	}
	e.engine.locks = table

	s, err := NewScheduler(e.engine, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.now = func() time.Time { return t0 }

	return e, s, t0
}

func TestNewScheduler_RequiresSplitEnabled(t *testing.T) {
	t.Parallel()

	e := newEnv(t, baseStrategy())

	if _, err := NewScheduler(e.engine, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error for split-disabled strategy")
	}
}

func TestScheduler_LegsAccumulate(t *testing.T) {
	t.Parallel()

	e, s, t0 := newSplitEnv(t)
	ctx := context.Background()

	// 400s to expiry: only the 600s leg is due.
	s.Tick(ctx)

	if got := e.exec.submitted(); got != 1 {
		t.Fatalf("submitted = %d, want 1 after first leg", got)
	}
	pos, ok := e.tracker.Get("0xcond:tok-up")
	if !ok {
		t.Fatal("first leg should register the position")
	}
	wantLeg := 50 / 0.97
	if math.Abs(pos.TotalSize-wantLeg) > 1e-9 {
		t.Fatalf("size after leg 1 = %f, want %f", pos.TotalSize, wantLeg)
	}

	// Re-ticking at the same time must not double-place the leg.
	s.Tick(ctx)
	if got := e.exec.submitted(); got != 1 {
		t.Fatalf("submitted = %d, want still 1", got)
	}

	// 200s to expiry: the 300s leg fires and accumulates.
	s.now = func() time.Time { return t0.Add(200 * time.Second) }
	s.Tick(ctx)

	if got := e.exec.submitted(); got != 2 {
		t.Fatalf("submitted = %d, want 2 after second leg", got)
	}
	pos, _ = e.tracker.Get("0xcond:tok-up")
	if math.Abs(pos.TotalSize-2*wantLeg) > 1e-9 {
		t.Errorf("size after leg 2 = %f, want %f", pos.TotalSize, 2*wantLeg)
	}
	if math.Abs(pos.EntryPrice-0.97) > 1e-9 {
		t.Errorf("blended entry price = %f, want 0.97", pos.EntryPrice)
	}
}

func TestScheduler_LegsDoNotFlagDuplicateOrders(t *testing.T) {
	t.Parallel()

	e, s, t0 := newSplitEnv(t)
	ctx := context.Background()

	// Leg 1 opens the position, leg 2 accumulates into it.
	s.Tick(ctx)
	s.now = func() time.Time { return t0.Add(200 * time.Second) }
	s.Tick(ctx)

	if got := e.exec.submitted(); got != 2 {
		t.Fatalf("submitted = %d, want 2", got)
	}

	// Both legs land on one market, which the watchdog must not read
	// as repeated entries on the same condition.
	if dups := e.log.DuplicateOrderMarkets(10 * time.Minute); len(dups) != 0 {
		t.Errorf("DuplicateOrderMarkets() = %v, want none for a multi-leg entry", dups)
	}

	recent := e.log.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("history entries = %d, want 2", len(recent))
	}
	if recent[0].Action != types.ActionSplitLeg || !recent[0].Succeeded() {
		t.Errorf("newest entry = %+v, want successful split leg", recent[0])
	}
	if recent[1].Action != types.ActionEntry {
		t.Errorf("oldest entry = %+v, want the opening entry", recent[1])
	}
}

func TestScheduler_SignalFlipKeepsFirstLegSide(t *testing.T) {
	t.Parallel()

	e, s, t0 := newSplitEnv(t)
	ctx := context.Background()

	// Leg 1 buys the up token while the reference sits above the strike.
	s.Tick(ctx)
	if _, ok := e.tracker.Get("0xcond:tok-up"); !ok {
		t.Fatal("first leg should open the up position")
	}

	// The reference crosses below the strike before leg 2, with the
	// trend now pointing down and a live book on the down token.
	e.prices.mu.Lock()
	e.prices.ref = 99200
	e.prices.closes = []float64{100650, 100600, 100500, 100400}
	e.prices.mu.Unlock()
	e.quotes.mu.Lock()
	e.quotes.quotes["tok-down"] = types.Quote{
		InstrumentID: "tok-down", BestBid: 0.93, BestBidSize: 200,
		BestAsk: 0.95, BestAskSize: 500, ObservedAt: time.Now(),
	}
	e.quotes.mu.Unlock()

	s.now = func() time.Time { return t0.Add(200 * time.Second) }
	s.Tick(ctx)

	// Leg 2 is dropped instead of opening the opposite side.
	if got := e.exec.submitted(); got != 1 {
		t.Fatalf("submitted = %d, want 1 (flipped leg must not place)", got)
	}
	if _, ok := e.tracker.Get("0xcond:tok-down"); ok {
		t.Error("no down position should exist for a market already held up")
	}
	if ordered := e.tracker.ByPhase(types.PhaseOrdered); len(ordered) != 1 {
		t.Errorf("ordered positions = %d, want 1", len(ordered))
	}

	// The flipped leg is consumed, not retried every tick.
	s.Tick(ctx)
	if got := e.exec.submitted(); got != 1 {
		t.Errorf("submitted = %d after re-tick, want still 1", got)
	}
}

func TestScheduler_FailedTrendSkipsOnlyThatLeg(t *testing.T) {
	t.Parallel()

	e, s, t0 := newSplitEnv(t)
	ctx := context.Background()

	// Leg 1 fails its trend gate and is consumed without an order.
	e.prices.closes = []float64{100650, 100600, 100500, 100400}
	s.Tick(ctx)

	if got := e.exec.submitted(); got != 0 {
		t.Fatalf("submitted = %d, want 0 after failed gate", got)
	}

	// The trend recovers: leg 1 stays consumed, leg 2 places normally.
	e.prices.closes = []float64{100400, 100500, 100600, 100650}
	s.now = func() time.Time { return t0.Add(200 * time.Second) }
	s.Tick(ctx)

	if got := e.exec.submitted(); got != 1 {
		t.Fatalf("submitted = %d, want 1 (leg 2 only)", got)
	}
	pos, ok := e.tracker.Get("0xcond:tok-up")
	if !ok {
		t.Fatal("leg 2 should open the position when leg 1 was skipped")
	}
	if math.Abs(pos.TotalSize-50/0.97) > 1e-9 {
		t.Errorf("size = %f, want single leg", pos.TotalSize)
	}
}

func TestScheduler_PrunesExpiredMarkets(t *testing.T) {
	t.Parallel()

	e, s, t0 := newSplitEnv(t)
	s.Tick(context.Background())

	if len(s.markets) != 1 {
		t.Fatalf("leg records = %d, want 1", len(s.markets))
	}

	e.markets.ok = false
	s.now = func() time.Time { return t0.Add(500 * time.Second) }
	s.Tick(context.Background())

	if len(s.markets) != 0 {
		t.Errorf("leg records = %d, want 0 after expiry", len(s.markets))
	}
}

func TestEngine_TickDefersToScheduler(t *testing.T) {
	t.Parallel()

	e := newEnv(t, splitStrategy())

	e.engine.Tick(context.Background())

	if got := e.exec.submitted(); got != 0 {
		t.Errorf("submitted = %d, split-enabled strategy must not enter on engine ticks", got)
	}
}
