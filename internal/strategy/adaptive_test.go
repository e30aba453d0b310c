package strategy

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mselser95/polymarket-updown/pkg/statefile"
)

func newThresholds(t *testing.T, state Persister) *Thresholds {
	t.Helper()

	th, err := NewThresholds("updown-1h", 600, 2, 4, state, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewThresholds() error = %v", err)
	}

	return th
}

func TestThresholds_RatchetAndRevert(t *testing.T) {
	t.Parallel()

	th := newThresholds(t, nil)

	if got := th.Required("BTC"); got != 600 {
		t.Fatalf("baseline required = %f, want 600", got)
	}

	// Delta below baseline x multiplier never ratchets.
	if th.Observe("BTC", 1100) {
		t.Error("Observe(1100) should not ratchet below 1200")
	}

	if !th.Observe("BTC", 1300) {
		t.Fatal("Observe(1300) should set the override")
	}
	if got := th.Required("BTC"); got != 1300 {
		t.Fatalf("required = %f, want override 1300", got)
	}

	// Four consecutive no-entry ticks revert to baseline.
	for i := 0; i < 4; i++ {
		th.RecordSkip("BTC")
	}
	if got := th.Required("BTC"); got != 600 {
		t.Errorf("required after revert = %f, want 600", got)
	}
	if th.State("BTC").Active() {
		t.Error("state should be cleared after revert")
	}
}

func TestThresholds_RepeatedObserveKeepsStreak(t *testing.T) {
	t.Parallel()

	th := newThresholds(t, nil)
	th.Observe("BTC", 1300)

	th.RecordSkip("BTC")
	th.Observe("BTC", 1300) // same delta again: no reset
	th.RecordSkip("BTC")

	if got := th.State("BTC").NoBuyStreak; got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}

	// A larger move ratchets higher and resets the streak.
	th.Observe("BTC", 1500)
	state := th.State("BTC")
	if state.OverrideDelta != 1500 || state.NoBuyStreak != 0 {
		t.Errorf("state = %+v, want override 1500 streak 0", state)
	}
}

func TestThresholds_EntryClearsImmediately(t *testing.T) {
	t.Parallel()

	th := newThresholds(t, nil)
	th.Observe("BTC", 1300)
	th.RecordSkip("BTC")

	th.RecordEntry("BTC")

	if th.State("BTC").Active() {
		t.Error("entry should clear the override")
	}
	if got := th.Required("BTC"); got != 600 {
		t.Errorf("required = %f, want baseline", got)
	}
}

func TestThresholds_SkipWithoutOverrideIsNoop(t *testing.T) {
	t.Parallel()

	th := newThresholds(t, nil)

	th.RecordSkip("BTC")
	th.RecordSkip("BTC")

	if got := th.State("BTC").NoBuyStreak; got != 0 {
		t.Errorf("streak = %d, want 0 while no override is active", got)
	}
}

func TestThresholds_PerSymbolIsolation(t *testing.T) {
	t.Parallel()

	th := newThresholds(t, nil)
	th.Observe("BTC", 1300)

	if got := th.Required("ETH"); got != 600 {
		t.Errorf("ETH required = %f, want baseline 600", got)
	}
}

func TestThresholds_PersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	store, err := statefile.New(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("statefile.New() error = %v", err)
	}

	th := newThresholds(t, store)
	th.Observe("BTC", 1300)
	th.RecordSkip("BTC")

	restored := newThresholds(t, store)
	state := restored.State("BTC")
	if state.OverrideDelta != 1300 || state.NoBuyStreak != 1 {
		t.Errorf("restored state = %+v, want override 1300 streak 1", state)
	}
}
