// Package history keeps the bounded newest-first action history. It is
// both an audit surface and the duplicate-entry guard: entry decisions
// consult it before placing, the watchdog scans it for duplicate orders.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

const stateName = "history"

// Mirror receives a copy of every recorded entry for durable storage.
// Mirror failures never fail the recording action.
type Mirror interface {
	SaveHistory(ctx context.Context, entry *types.HistoryEntry) error
}

// Persister saves the bounded history document between restarts.
type Persister interface {
	Save(name string, v any) error
	LoadOr(name string, v any) (bool, error)
}

// Config holds history configuration.
type Config struct {
	// Limit bounds how many entries are kept, newest first.
	Limit int
	// State persists the bounded window across restarts; nil keeps the
	// history in memory only.
	State Persister
	// Mirror receives every entry; nil disables mirroring.
	Mirror Mirror
	Logger *zap.Logger
}

// Log implements the bounded history.
type Log struct {
	limit  int
	state  Persister
	mirror Mirror
	logger *zap.Logger

	mu      sync.RWMutex
	entries []types.HistoryEntry // newest first

	now func() time.Time
}

// New validates cfg, builds a Log and restores the persisted window.
func New(cfg *Config) (*Log, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", cfg.Limit)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	l := &Log{
		limit:  cfg.Limit,
		state:  cfg.State,
		mirror: cfg.Mirror,
		logger: cfg.Logger,
		now:    time.Now,
	}

	if l.state != nil {
		var saved []types.HistoryEntry
		found, err := l.state.LoadOr(stateName, &saved)
		if err != nil {
			return nil, fmt.Errorf("restore history: %w", err)
		}
		if found {
			if len(saved) > l.limit {
				saved = saved[:l.limit]
			}
			l.entries = saved
			l.logger.Info("history-restored", zap.Int("entries", len(saved)))
		}
	}

	return l, nil
}

// Record stamps id/time if unset, prepends the entry, trims to the
// limit, persists and mirrors. Mirror and persist failures are logged
// only.
func (l *Log) Record(ctx context.Context, entry types.HistoryEntry) types.HistoryEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.At.IsZero() {
		entry.At = l.now().UTC()
	}

	l.mu.Lock()
	l.entries = append([]types.HistoryEntry{entry}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	snapshot := append([]types.HistoryEntry(nil), l.entries...)
	l.mu.Unlock()

	RecordedTotal.WithLabelValues(string(entry.Action)).Inc()

	if l.state != nil {
		if err := l.state.Save(stateName, snapshot); err != nil {
			l.logger.Warn("history-persist-failed", zap.Error(err))
		}
	}
	if l.mirror != nil {
		if err := l.mirror.SaveHistory(ctx, &entry); err != nil {
			l.logger.Warn("history-mirror-failed",
				zap.String("entry-id", entry.ID),
				zap.Error(err))
		}
	}

	return entry
}

// Recent returns up to limit entries, newest first. limit <= 0 returns
// everything kept.
func (l *Log) Recent(limit int) []types.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}

	return append([]types.HistoryEntry(nil), l.entries[:n]...)
}

// HasEntryFor reports whether a successful entry was recorded for the
// position key within the trailing window. One of the three duplicate
// guards on the entry path.
func (l *Log) HasEntryFor(positionKey string, within time.Duration) bool {
	cutoff := l.now().Add(-within)

	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := range l.entries {
		e := &l.entries[i]
		if e.At.Before(cutoff) {
			// Entries are newest first; everything past here is older.
			return false
		}
		if e.Action == types.ActionEntry && e.PositionKey == positionKey && e.Succeeded() {
			return true
		}
	}

	return false
}

// EntryCountFor counts successful entries for one market within the
// trailing window. The watchdog treats a count above one as a
// duplicate-order breach.
func (l *Log) EntryCountFor(conditionID string, within time.Duration) int {
	cutoff := l.now().Add(-within)

	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for i := range l.entries {
		e := &l.entries[i]
		if e.At.Before(cutoff) {
			break
		}
		if e.Action == types.ActionEntry && e.ConditionID == conditionID && e.Succeeded() {
			count++
		}
	}

	return count
}

// DuplicateOrderMarkets returns condition ids with more than one
// successful entry inside the trailing window.
func (l *Log) DuplicateOrderMarkets(within time.Duration) []string {
	cutoff := l.now().Add(-within)

	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[string]int)
	for i := range l.entries {
		e := &l.entries[i]
		if e.At.Before(cutoff) {
			break
		}
		if e.Action == types.ActionEntry && e.ConditionID != "" && e.Succeeded() {
			counts[e.ConditionID]++
		}
	}

	var dups []string
	for id, n := range counts {
		if n > 1 {
			dups = append(dups, id)
		}
	}

	return dups
}

// ByStrategy returns up to limit entries for one strategy, newest
// first.
func (l *Log) ByStrategy(strategy string, limit int) []types.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []types.HistoryEntry
	for i := range l.entries {
		if l.entries[i].Strategy != strategy {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out
}
