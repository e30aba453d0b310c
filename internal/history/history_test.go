package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/pkg/statefile"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

type failingMirror struct{ calls int }

func (m *failingMirror) SaveHistory(context.Context, *types.HistoryEntry) error {
	m.calls++

	return errors.New("db down")
}

func newTestLog(t *testing.T, limit int) *Log {
	t.Helper()

	l, err := New(&Config{Limit: limit, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return l
}

func entryFor(key, conditionID string) types.HistoryEntry {
	return types.HistoryEntry{
		Strategy:    "updown-1h",
		Symbol:      "BTC",
		Action:      types.ActionEntry,
		PositionKey: key,
		ConditionID: conditionID,
		Outcome:     "ok",
		Price:       0.95,
		Size:        50,
	}
}

func TestLog_NewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := entryFor("k", "c")
		e.Detail = string(rune('a' + i))
		l.Record(ctx, e)
	}

	got := l.Recent(0)
	if len(got) != 3 {
		t.Fatalf("kept %d entries, want 3", len(got))
	}
	if got[0].Detail != "e" || got[2].Detail != "c" {
		t.Errorf("order = [%s %s %s], want newest first [e d c]", got[0].Detail, got[1].Detail, got[2].Detail)
	}
}

func TestLog_StampsIDAndTime(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 10)

	recorded := l.Record(context.Background(), entryFor("k", "c"))
	if recorded.ID == "" {
		t.Error("expected a generated id")
	}
	if recorded.At.IsZero() {
		t.Error("expected a stamped time")
	}
}

func TestLog_HasEntryFor(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 10)
	base := time.Now()
	l.now = func() time.Time { return base }

	l.Record(context.Background(), entryFor("cond1:tok1", "cond1"))

	// Skips never count as duplicates.
	skip := entryFor("cond2:tok2", "cond2")
	skip.Action = types.ActionEntrySkip
	skip.Outcome = "skipped:delta_too_small"
	l.Record(context.Background(), skip)

	if !l.HasEntryFor("cond1:tok1", 10*time.Minute) {
		t.Error("expected duplicate guard hit for recorded entry")
	}
	if l.HasEntryFor("cond2:tok2", 10*time.Minute) {
		t.Error("skip records must not trigger the duplicate guard")
	}

	// Outside the trailing window the record no longer blocks.
	l.now = func() time.Time { return base.Add(11 * time.Minute) }
	if l.HasEntryFor("cond1:tok1", 10*time.Minute) {
		t.Error("entry outside the window should not block")
	}
}

func TestLog_DuplicateOrderMarkets(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 10)
	ctx := context.Background()

	l.Record(ctx, entryFor("cond1:up", "cond1"))
	l.Record(ctx, entryFor("cond1:down", "cond1"))
	l.Record(ctx, entryFor("cond2:up", "cond2"))

	// Accumulation legs on an open position are not duplicate orders.
	leg := entryFor("cond2:up", "cond2")
	leg.Action = types.ActionSplitLeg
	l.Record(ctx, leg)

	dups := l.DuplicateOrderMarkets(10 * time.Minute)
	if len(dups) != 1 || dups[0] != "cond1" {
		t.Errorf("DuplicateOrderMarkets() = %v, want [cond1]", dups)
	}

	if n := l.EntryCountFor("cond1", 10*time.Minute); n != 2 {
		t.Errorf("EntryCountFor(cond1) = %d, want 2", n)
	}
}

func TestLog_MirrorFailureDoesNotFailRecord(t *testing.T) {
	t.Parallel()

	mirror := &failingMirror{}
	l, err := New(&Config{Limit: 10, Mirror: mirror, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Record(context.Background(), entryFor("k", "c"))

	if mirror.calls != 1 {
		t.Errorf("mirror called %d times, want 1", mirror.calls)
	}
	if len(l.Recent(0)) != 1 {
		t.Error("entry should be kept despite mirror failure")
	}
}

func TestLog_PersistAndRestore(t *testing.T) {
	t.Parallel()

	store, err := statefile.New(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("statefile.New() error = %v", err)
	}

	l, err := New(&Config{Limit: 10, State: store, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Record(context.Background(), entryFor("cond1:tok1", "cond1"))
	l.Record(context.Background(), entryFor("cond2:tok2", "cond2"))

	restored, err := New(&Config{Limit: 10, State: store, Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("restore New() error = %v", err)
	}

	got := restored.Recent(0)
	if len(got) != 2 {
		t.Fatalf("restored %d entries, want 2", len(got))
	}
	if got[0].PositionKey != "cond2:tok2" {
		t.Errorf("restored order wrong, got %s first", got[0].PositionKey)
	}
}

func TestLog_ByStrategy(t *testing.T) {
	t.Parallel()

	l := newTestLog(t, 10)
	ctx := context.Background()

	a := entryFor("k1", "c1")
	a.Strategy = "alpha"
	b := entryFor("k2", "c2")
	b.Strategy = "beta"
	l.Record(ctx, a)
	l.Record(ctx, b)

	got := l.ByStrategy("alpha", 0)
	if len(got) != 1 || got[0].Strategy != "alpha" {
		t.Errorf("ByStrategy(alpha) = %v", got)
	}
}
