package watchdog

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/internal/history"
	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

type stubFeed struct{ failures int }

func (s *stubFeed) Failures() int { return s.failures }

type stubRedeems struct {
	failStreak int
	stuck      []types.Redemption
}

func (s *stubRedeems) FailStreak() int { return s.failStreak }

func (s *stubRedeems) Stuck(_ time.Time, _ time.Duration) []types.Redemption { return s.stuck }

type wdEnv struct {
	watchdog *Watchdog
	feed     *stubFeed
	redeems  *stubRedeems
	log      *history.Log
	state    *statefile.Store
}

func newWDEnv(t *testing.T) *wdEnv {
	t.Helper()

	logger := zaptest.NewLogger(t)

	log, err := history.New(&history.Config{Limit: 100, Logger: logger})
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	state, err := statefile.New(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("statefile.New() error = %v", err)
	}

	e := &wdEnv{
		feed:    &stubFeed{},
		redeems: &stubRedeems{},
		log:     log,
		state:   state,
	}

	w, err := New(&Config{
		Interval:        time.Second,
		RunWindow:       time.Hour,
		StaleThreshold:  5,
		RedeemThreshold: 3,
		OrderThreshold:  3,
		RedeemTimeout:   10 * time.Minute,
		Feeds:           map[string]Feed{"quotes": e.feed},
		Redeems:         e.redeems,
		History:         log,
		Record:          log,
		Reports:         state,
		Logger:          logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w.Start()
	e.watchdog = w

	return e
}

func TestWatchdog_New_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "zero interval", cfg: &Config{StaleThreshold: 5, Logger: logger}},
		{name: "zero stale threshold", cfg: &Config{Interval: time.Second, Logger: logger}},
		{name: "nil logger", cfg: &Config{Interval: time.Second, StaleThreshold: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := New(tt.cfg); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestWatchdog_DataErrorStreakStops(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	e.feed.failures = 2
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if !e.watchdog.Tick(ctx) {
			t.Fatalf("tick %d stopped early", i+1)
		}
	}
	if !e.watchdog.Enabled() {
		t.Fatal("gate closed before the threshold")
	}

	// The fifth consecutive unhealthy tick trips the stop.
	if e.watchdog.Tick(ctx) {
		t.Fatal("fifth unhealthy tick should stop")
	}
	if e.watchdog.Enabled() {
		t.Error("gate should be closed after the stop")
	}

	report, ok := e.watchdog.LastReport()
	if !ok || report.Reason != StopDataError {
		t.Errorf("report = %+v, want data_error", report)
	}
	if report.Counters.DataErrorStreak != 5 {
		t.Errorf("streak = %d, want 5", report.Counters.DataErrorStreak)
	}
	if len(report.Issues) == 0 {
		t.Error("report should carry the observed issues")
	}
}

func TestWatchdog_RecoveryResetsStreak(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	ctx := context.Background()

	e.feed.failures = 1
	for i := 0; i < 4; i++ {
		e.watchdog.Tick(ctx)
	}

	// One healthy tick clears the streak; four more unhealthy ones stay
	// under the threshold.
	e.feed.failures = 0
	e.watchdog.Tick(ctx)
	e.feed.failures = 1
	for i := 0; i < 4; i++ {
		if !e.watchdog.Tick(ctx) {
			t.Fatal("streak should have been reset by the healthy tick")
		}
	}
}

func TestWatchdog_DuplicateOrderStops(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		e.log.Record(ctx, types.HistoryEntry{
			Action:      types.ActionEntry,
			Outcome:     "ok",
			ConditionID: "0xcond",
			Strategy:    "updown-1h",
		})
	}

	if e.watchdog.Tick(ctx) {
		t.Fatal("duplicate entries within the window should stop")
	}

	report, _ := e.watchdog.LastReport()
	if report.Reason != StopDuplicateOrder {
		t.Errorf("reason = %s, want duplicate_order", report.Reason)
	}
	if !strings.Contains(report.Detail, "0xcond") {
		t.Errorf("detail %q should name the market", report.Detail)
	}
}

func TestWatchdog_SplitLegsAreNotDuplicateOrders(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	ctx := context.Background()

	// A staggered entry: one opening order plus an accumulation leg on
	// the same market must not read as a duplicate.
	e.log.Record(ctx, types.HistoryEntry{
		Action:      types.ActionEntry,
		Outcome:     "ok",
		ConditionID: "0xcond",
		Strategy:    "updown-1h",
	})
	e.log.Record(ctx, types.HistoryEntry{
		Action:      types.ActionSplitLeg,
		Outcome:     "ok",
		ConditionID: "0xcond",
		Strategy:    "updown-1h",
	})

	if !e.watchdog.Tick(ctx) {
		t.Fatal("a multi-leg entry on one market should keep automation running")
	}
}

func TestWatchdog_OrderFailureStreakStops(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	ctx := context.Background()

	// Failed accumulation legs count toward the streak like any order.
	for _, action := range []types.HistoryAction{types.ActionEntry, types.ActionSplitLeg, types.ActionEntry} {
		e.log.Record(ctx, types.HistoryEntry{
			Action:      action,
			Outcome:     "failed",
			ConditionID: "0xcond",
		})
	}

	if e.watchdog.Tick(ctx) {
		t.Fatal("three consecutive order failures should stop")
	}
	report, _ := e.watchdog.LastReport()
	if report.Reason != StopOrderFailed {
		t.Errorf("reason = %s, want order_failed", report.Reason)
	}
}

func TestWatchdog_OrderFailuresInterruptedBySuccessKeepRunning(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	ctx := context.Background()

	e.log.Record(ctx, types.HistoryEntry{Action: types.ActionEntry, Outcome: "failed", ConditionID: "0xa"})
	e.log.Record(ctx, types.HistoryEntry{Action: types.ActionEntry, Outcome: "failed", ConditionID: "0xb"})
	e.log.Record(ctx, types.HistoryEntry{Action: types.ActionEntry, Outcome: "ok", ConditionID: "0xc"})
	e.log.Record(ctx, types.HistoryEntry{Action: types.ActionEntry, Outcome: "failed", ConditionID: "0xd"})

	if !e.watchdog.Tick(ctx) {
		t.Fatal("a success between failures should keep automation running")
	}
}

func TestWatchdog_RedeemFailStreakStops(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	e.redeems.failStreak = 3

	if e.watchdog.Tick(context.Background()) {
		t.Fatal("redeem failure streak should stop")
	}
	report, _ := e.watchdog.LastReport()
	if report.Reason != StopRedeemFailed || report.Counters.RedeemFailures != 3 {
		t.Errorf("report = %+v, want redeem_failed with 3 failures", report)
	}
}

func TestWatchdog_StuckRedemptionStops(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	e.redeems.stuck = []types.Redemption{{
		ConditionID: "0xstuck",
		Status:      types.RedeemSubmitted,
		SubmittedAt: time.Now().Add(-15 * time.Minute),
	}}

	if e.watchdog.Tick(context.Background()) {
		t.Fatal("stuck redemption should stop")
	}
	report, _ := e.watchdog.LastReport()
	if report.Reason != StopRedeemTimeout {
		t.Errorf("reason = %s, want redeem_timeout", report.Reason)
	}
}

func TestWatchdog_RunWindowElapses(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	e.watchdog.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if e.watchdog.Tick(context.Background()) {
		t.Fatal("elapsed run window should stop")
	}
	report, _ := e.watchdog.LastReport()
	if report.Reason != StopDurationElapsed {
		t.Errorf("reason = %s, want duration_elapsed", report.Reason)
	}
}

func TestWatchdog_StopWritesReportAndHistory(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	e.redeems.failStreak = 3
	ctx := context.Background()

	e.watchdog.Tick(ctx)

	names, err := e.state.List("reports")
	if err != nil || len(names) != 1 {
		t.Fatalf("List(reports) = %v, %v, want one report", names, err)
	}

	var restored Report
	if err := e.state.Load(names[0], &restored); err != nil {
		t.Fatalf("Load(%s) error = %v", names[0], err)
	}
	if restored.Reason != StopRedeemFailed {
		t.Errorf("restored reason = %s, want redeem_failed", restored.Reason)
	}

	text, err := e.state.ReadText(names[0])
	if err != nil {
		t.Fatalf("ReadText() error = %v", err)
	}
	if !strings.Contains(text, "AUTOMATION STOPPED: redeem_failed") {
		t.Errorf("rendered report missing the headline:\n%s", text)
	}

	recent := e.log.Recent(1)
	if len(recent) != 1 || recent[0].Action != types.ActionWatchdogStop {
		t.Errorf("history = %+v, want watchdog_stop entry", recent)
	}

	// Ticks after a stop are inert.
	if e.watchdog.Tick(ctx) {
		t.Error("tick after stop should report stopped")
	}
}

func TestWatchdog_StartRearmsAfterStop(t *testing.T) {
	t.Parallel()

	e := newWDEnv(t)
	e.redeems.failStreak = 3
	ctx := context.Background()

	e.watchdog.Tick(ctx)
	if e.watchdog.Enabled() {
		t.Fatal("expected stop")
	}

	e.redeems.failStreak = 0
	e.watchdog.Start()

	if !e.watchdog.Enabled() {
		t.Error("Start() should rearm the gate")
	}
	if !e.watchdog.Tick(ctx) {
		t.Error("healthy tick after rearm should pass")
	}
	if _, ok := e.watchdog.LastReport(); ok {
		t.Error("rearming should clear the previous report")
	}
}
