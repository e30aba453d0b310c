package strategy

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AdaptiveState is the per-symbol mutable entry-delta requirement. The
// override is set when an observed delta dwarfs the baseline and decays
// after a bounded streak of ticks without an entry.
type AdaptiveState struct {
	OverrideDelta float64 `json:"override_delta,omitempty"`
	NoBuyStreak   int     `json:"no_buy_streak,omitempty"`
}

// Active reports whether an override is currently raising the baseline.
func (s AdaptiveState) Active() bool { return s.OverrideDelta > 0 }

// Persister saves adaptive state between restarts.
type Persister interface {
	Save(name string, v any) error
	LoadOr(name string, v any) (bool, error)
}

// Thresholds owns the adaptive-delta state for one strategy, keyed by
// symbol. It guards its own read-modify-write; callers never hold the
// map across a tick boundary.
type Thresholds struct {
	strategy    string
	baseline    float64
	multiplier  float64
	revertCount int
	state       Persister
	logger      *zap.Logger

	mu     sync.Mutex
	states map[string]*AdaptiveState
}

// NewThresholds restores persisted adaptive state for the strategy when
// present. baseline <= 0 disables the delta gate entirely; the store
// still exists so status surfaces stay uniform.
func NewThresholds(strategy string, baseline, multiplier float64, revertCount int, state Persister, logger *zap.Logger) (*Thresholds, error) {
	if strategy == "" {
		return nil, fmt.Errorf("strategy name cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	t := &Thresholds{
		strategy:    strategy,
		baseline:    baseline,
		multiplier:  multiplier,
		revertCount: revertCount,
		state:       state,
		logger:      logger,
		states:      make(map[string]*AdaptiveState),
	}

	if state != nil {
		var saved map[string]*AdaptiveState
		found, err := state.LoadOr(t.stateName(), &saved)
		if err != nil {
			return nil, fmt.Errorf("restore adaptive state: %w", err)
		}
		if found && saved != nil {
			t.states = saved
		}
	}

	return t, nil
}

func (t *Thresholds) stateName() string { return "adaptive-" + t.strategy }

// Required returns the delta a candidate must clear for symbol: the
// override while one is active, the baseline otherwise. Zero means the
// delta gate is disabled.
func (t *Thresholds) Required(symbol string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.states[symbol]; ok && s.Active() {
		return s.OverrideDelta
	}

	return t.baseline
}

// Observe ratchets the override up to delta when it reaches
// baseline x multiplier, resetting the no-buy streak. Returns true when
// the override changed.
func (t *Thresholds) Observe(symbol string, delta float64) bool {
	if t.baseline <= 0 || t.multiplier <= 0 {
		return false
	}
	if delta < t.baseline*t.multiplier {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stateLocked(symbol)
	if delta <= s.OverrideDelta {
		return false
	}

	s.OverrideDelta = delta
	s.NoBuyStreak = 0
	t.persistLocked()
	OverrideGauge.WithLabelValues(t.strategy, symbol).Set(delta)

	t.logger.Info("adaptive-delta-raised",
		zap.String("strategy", t.strategy),
		zap.String("symbol", symbol),
		zap.Float64("override", delta),
		zap.Float64("baseline", t.baseline))

	return true
}

// RecordSkip counts one no-entry tick against the active override.
// After revertCount consecutive skips the override clears back to the
// baseline. No-op while no override is active.
func (t *Thresholds) RecordSkip(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[symbol]
	if !ok || !s.Active() {
		return
	}

	s.NoBuyStreak++
	if s.NoBuyStreak < t.revertCount {
		t.persistLocked()

		return
	}

	t.logger.Info("adaptive-delta-reverted",
		zap.String("strategy", t.strategy),
		zap.String("symbol", symbol),
		zap.Float64("override", s.OverrideDelta),
		zap.Int("streak", s.NoBuyStreak))

	delete(t.states, symbol)
	t.persistLocked()
	OverrideGauge.WithLabelValues(t.strategy, symbol).Set(0)
	RevertsTotal.WithLabelValues(t.strategy).Inc()
}

// RecordEntry clears the override immediately after a successful entry.
func (t *Thresholds) RecordEntry(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.states[symbol]; !ok {
		return
	}

	delete(t.states, symbol)
	t.persistLocked()
	OverrideGauge.WithLabelValues(t.strategy, symbol).Set(0)
}

// State returns a copy of the adaptive state for symbol.
func (t *Thresholds) State(symbol string) AdaptiveState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.states[symbol]; ok {
		return *s
	}

	return AdaptiveState{}
}

// Snapshot returns a copy of every symbol's state for status surfaces.
func (t *Thresholds) Snapshot() map[string]AdaptiveState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]AdaptiveState, len(t.states))
	for sym, s := range t.states {
		out[sym] = *s
	}

	return out
}

func (t *Thresholds) stateLocked(symbol string) *AdaptiveState {
	s, ok := t.states[symbol]
	if !ok {
		s = &AdaptiveState{}
		t.states[symbol] = s
	}

	return s
}

// persistLocked saves the state map. Callers hold t.mu.
func (t *Thresholds) persistLocked() {
	if t.state == nil {
		return
	}
	if err := t.state.Save(t.stateName(), t.states); err != nil {
		t.logger.Error("adaptive-state-persist-failed",
			zap.String("strategy", t.strategy), zap.Error(err))
	}
}
