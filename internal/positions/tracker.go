// Package positions tracks venue positions created by the engine from
// placement through redemption, enforcing monotonic phase transitions
// and bounded retention.
package positions

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Store is the tracker surface used by the entry, stop-loss, redeem and
// watchdog paths. Implementations guard their own read-modify-write.
type Store interface {
	// Register records a position created by a successful placement.
	// A live position under the same key is rejected.
	Register(p *types.Position) error
	// Transition moves a position to the next phase, rejecting
	// non-monotonic moves.
	Transition(key string, next types.Phase) error
	// ApplySell adds sold size from a stop-loss execution and records
	// the deepest cut reached.
	ApplySell(key string, size float64, cut types.Cut) error
	// Accumulate grows an ordered position by a later fill under the
	// same key, blending the entry price.
	Accumulate(key string, size, price float64) error
	// Get returns a copy of the tracked position.
	Get(key string) (types.Position, bool)
	// HasLiveFor reports whether a live (ordered-phase, or failed but
	// not yet retryable) position exists for symbol and expiry.
	HasLiveFor(symbol string, expiry time.Time) bool
	// ActiveForStopLoss lists ordered-phase positions with remaining
	// inventory for the given strategy.
	ActiveForStopLoss(strategy string) []types.Position
	// ByPhase lists positions currently in the given phase.
	ByPhase(phase types.Phase) []types.Position
	// All lists every tracked position.
	All() []types.Position
	// LastExpiry returns when a position for symbol most recently
	// expired, zero if none has.
	LastExpiry(symbol string) time.Time
	// MarkExpired transitions past-expiry ordered positions to expired
	// and returns how many moved.
	MarkExpired(now time.Time) int
	// Sweep drops positions older than the retention window and
	// returns how many were dropped.
	Sweep(now time.Time) int
}

// Config holds tracker configuration.
type Config struct {
	// Retention bounds how long terminal positions stay queryable.
	Retention time.Duration
	// FailedRetryCooldown is how long a failed position keeps blocking
	// re-entry for its key.
	FailedRetryCooldown time.Duration
	Logger              *zap.Logger
}

// Tracker implements Store over an in-memory map.
type Tracker struct {
	retention           time.Duration
	failedRetryCooldown time.Duration
	logger              *zap.Logger

	mu         sync.RWMutex
	positions  map[string]*types.Position
	lastExpiry map[string]time.Time

	now func() time.Time
}

// New validates cfg and builds a Tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", cfg.Retention)
	}
	if cfg.FailedRetryCooldown < 0 {
		return nil, fmt.Errorf("failed retry cooldown cannot be negative, got %s", cfg.FailedRetryCooldown)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Tracker{
		retention:           cfg.Retention,
		failedRetryCooldown: cfg.FailedRetryCooldown,
		logger:              cfg.Logger,
		positions:           make(map[string]*types.Position),
		lastExpiry:          make(map[string]time.Time),
		now:                 time.Now,
	}, nil
}

// Register implements Store.
func (t *Tracker) Register(p *types.Position) error {
	if p == nil || p.Key == "" {
		return fmt.Errorf("position key cannot be empty")
	}
	if p.TotalSize <= 0 {
		return fmt.Errorf("position size must be positive, got %f", p.TotalSize)
	}

	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.positions[p.Key]; ok && t.blocksLocked(existing, now) {
		return fmt.Errorf("position %s already tracked in phase %s", p.Key, existing.Phase)
	}

	cp := *p
	if cp.Phase == "" {
		cp.Phase = types.PhaseOrdered
	}
	if cp.CutsApplied == "" {
		cp.CutsApplied = types.CutNone
	}
	if cp.OrderedAt.IsZero() {
		cp.OrderedAt = now
	}
	t.positions[cp.Key] = &cp

	TrackedTotal.Inc()
	t.updateGaugesLocked()

	t.logger.Info("position-registered",
		zap.String("key", cp.Key),
		zap.String("strategy", cp.Strategy),
		zap.String("symbol", cp.Symbol),
		zap.Float64("entry-price", cp.EntryPrice),
		zap.Float64("size", cp.TotalSize))

	return nil
}

// Transition implements Store.
func (t *Tracker) Transition(key string, next types.Phase) error {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[key]
	if !ok {
		return fmt.Errorf("position %s not tracked", key)
	}

	if !p.Phase.CanTransition(next) {
		return fmt.Errorf("position %s cannot move %s -> %s", key, p.Phase, next)
	}

	prev := p.Phase
	p.Phase = next
	switch next {
	case types.PhaseExpired:
		t.lastExpiry[p.Symbol] = now
	case types.PhaseFailed:
		p.FailedAt = now
	}

	TransitionsTotal.WithLabelValues(string(prev), string(next)).Inc()
	t.updateGaugesLocked()

	t.logger.Info("position-transitioned",
		zap.String("key", key),
		zap.String("from", string(prev)),
		zap.String("to", string(next)))

	return nil
}

// ApplySell implements Store.
func (t *Tracker) ApplySell(key string, size float64, cut types.Cut) error {
	if size <= 0 {
		return fmt.Errorf("sell size must be positive, got %f", size)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[key]
	if !ok {
		return fmt.Errorf("position %s not tracked", key)
	}

	remaining := p.RemainingSize()
	if size > remaining+1e-9 {
		return fmt.Errorf("sell size %f exceeds remaining %f for %s", size, remaining, key)
	}

	p.SoldSize += size
	if cut == types.Cut2 || (cut == types.Cut1 && p.CutsApplied == types.CutNone) {
		p.CutsApplied = cut
	}

	return nil
}

// Accumulate implements Store.
func (t *Tracker) Accumulate(key string, size, price float64) error {
	if size <= 0 {
		return fmt.Errorf("fill size must be positive, got %f", size)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.positions[key]
	if !ok {
		return fmt.Errorf("position %s not tracked", key)
	}
	if p.Phase != types.PhaseOrdered {
		return fmt.Errorf("position %s in phase %s cannot accumulate", key, p.Phase)
	}

	total := p.TotalSize + size
	p.EntryPrice = (p.EntryPrice*p.TotalSize + price*size) / total
	p.TotalSize = total

	t.logger.Info("position-accumulated",
		zap.String("key", key),
		zap.Float64("added-size", size),
		zap.Float64("total-size", total),
		zap.Float64("entry-price", p.EntryPrice))

	return nil
}

// Get implements Store.
func (t *Tracker) Get(key string) (types.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.positions[key]
	if !ok {
		return types.Position{}, false
	}

	return *p, true
}

// HasLiveFor implements Store.
func (t *Tracker) HasLiveFor(symbol string, expiry time.Time) bool {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, p := range t.positions {
		if p.Symbol != symbol || !p.Expiry.Equal(expiry) {
			continue
		}
		if t.blocksLocked(p, now) {
			return true
		}
	}

	return false
}

// blocksLocked reports whether p still claims its key for entry
// purposes. Callers hold t.mu.
func (t *Tracker) blocksLocked(p *types.Position, now time.Time) bool {
	switch p.Phase {
	case types.PhaseOrdered, types.PhaseExpired, types.PhaseRedeemSubmitted:
		return true
	case types.PhaseFailed:
		return now.Sub(p.FailedAt) < t.failedRetryCooldown
	default:
		return false
	}
}

// ActiveForStopLoss implements Store.
func (t *Tracker) ActiveForStopLoss(strategy string) []types.Position {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.Position
	for _, p := range t.positions {
		if p.Strategy != strategy || p.Phase != types.PhaseOrdered {
			continue
		}
		if p.RemainingSize() <= 0 || p.Expired(now) {
			continue
		}
		out = append(out, *p)
	}

	return out
}

// ByPhase implements Store.
func (t *Tracker) ByPhase(phase types.Phase) []types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []types.Position
	for _, p := range t.positions {
		if p.Phase == phase {
			out = append(out, *p)
		}
	}

	return out
}

// All implements Store.
func (t *Tracker) All() []types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}

	return out
}

// LastExpiry implements Store.
func (t *Tracker) LastExpiry(symbol string) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.lastExpiry[symbol]
}

// MarkExpired implements Store.
func (t *Tracker) MarkExpired(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	moved := 0
	for _, p := range t.positions {
		if p.Phase != types.PhaseOrdered || !p.Expired(now) {
			continue
		}
		p.Phase = types.PhaseExpired
		t.lastExpiry[p.Symbol] = now
		moved++
		TransitionsTotal.WithLabelValues(string(types.PhaseOrdered), string(types.PhaseExpired)).Inc()
	}

	if moved > 0 {
		t.updateGaugesLocked()
		t.logger.Info("positions-expired", zap.Int("count", moved))
	}

	return moved
}

// Sweep implements Store.
func (t *Tracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for key, p := range t.positions {
		ref := p.OrderedAt
		if ref.IsZero() {
			ref = p.Expiry
		}
		if now.Sub(ref) > t.retention {
			delete(t.positions, key)
			dropped++
		}
	}

	if dropped > 0 {
		SweptTotal.Add(float64(dropped))
		t.updateGaugesLocked()
		t.logger.Info("positions-swept", zap.Int("count", dropped))
	}

	return dropped
}

// updateGaugesLocked refreshes phase gauges. Callers hold t.mu.
func (t *Tracker) updateGaugesLocked() {
	counts := map[types.Phase]int{}
	for _, p := range t.positions {
		counts[p.Phase]++
	}
	for _, phase := range []types.Phase{
		types.PhaseOrdered,
		types.PhaseExpired,
		types.PhaseRedeemSubmitted,
		types.PhaseRedeemed,
		types.PhaseRedeemFailed,
		types.PhaseFailed,
	} {
		ActiveByPhase.WithLabelValues(string(phase)).Set(float64(counts[phase]))
	}
}
