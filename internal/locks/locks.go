// Package locks guards order placement: a per-key TTL lock table that
// prevents duplicate placement for a logical position key, plus one
// global submission slot so at most one order is in flight process-wide.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle of one held lock.
type Status string

const (
	StatusPlacing Status = "placing"
	StatusOrdered Status = "ordered"
	StatusFailed  Status = "failed"
)

// Lock is one entry in the table.
type Lock struct {
	Key        string    `json:"key"`
	Status     Status    `json:"status"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Table is the lock surface used by the entry, stop-loss and redeem
// paths. Implementations guard their own read-modify-write.
type Table interface {
	// Acquire succeeds iff no unexpired lock exists for key, installing
	// a placing lock that expires after the table TTL.
	Acquire(key string) bool
	// Release marks the lock ordered or failed and keeps it visible for
	// a short grace window before it expires.
	Release(key string, ok bool)
	// Held reports whether an unexpired lock exists for key.
	Held(key string) bool
	// AcquireGlobal claims the single submission slot, blocking until
	// the slot frees or ctx is done.
	AcquireGlobal(ctx context.Context) error
	// ReleaseGlobal frees the submission slot.
	ReleaseGlobal()
	// Snapshot lists unexpired locks for status surfaces.
	Snapshot() []Lock
}

// Config holds lock manager configuration.
type Config struct {
	// TTL bounds how long an acquired lock blocks other acquirers when
	// the holder never releases (timed-out tick).
	TTL time.Duration
	// Grace keeps released locks visible, absorbing immediate retries
	// for the same key.
	Grace  time.Duration
	Logger *zap.Logger
}

// Manager implements Table over an in-memory map swept lazily on each
// acquire attempt.
type Manager struct {
	ttl    time.Duration
	grace  time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*Lock

	submission chan struct{}

	now func() time.Time
}

// New validates cfg and builds a Manager.
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("lock TTL must be positive, got %s", cfg.TTL)
	}
	if cfg.Grace < 0 {
		return nil, fmt.Errorf("lock grace cannot be negative, got %s", cfg.Grace)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Manager{
		ttl:        cfg.TTL,
		grace:      cfg.Grace,
		logger:     cfg.Logger,
		locks:      make(map[string]*Lock),
		submission: make(chan struct{}, 1),
		now:        time.Now,
	}, nil
}

// Acquire implements Table.
func (m *Manager) Acquire(key string) bool {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(now)

	if existing, ok := m.locks[key]; ok && now.Before(existing.ExpiresAt) {
		AcquireContendedTotal.Inc()
		m.logger.Debug("lock-contended",
			zap.String("key", key),
			zap.String("status", string(existing.Status)),
			zap.Time("expires-at", existing.ExpiresAt))

		return false
	}

	m.locks[key] = &Lock{
		Key:        key,
		Status:     StatusPlacing,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	AcquiredTotal.Inc()
	ActiveLocks.Set(float64(len(m.locks)))

	return true
}

// Release implements Table.
func (m *Manager) Release(key string, ok bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	lock, exists := m.locks[key]
	if !exists {
		m.logger.Warn("release-without-lock", zap.String("key", key))

		return
	}

	if ok {
		lock.Status = StatusOrdered
	} else {
		lock.Status = StatusFailed
	}
	lock.ExpiresAt = now.Add(m.grace)
	ReleasedTotal.WithLabelValues(string(lock.Status)).Inc()
}

// Held implements Table.
func (m *Manager) Held(key string) bool {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[key]

	return ok && now.Before(lock.ExpiresAt)
}

// AcquireGlobal implements Table.
func (m *Manager) AcquireGlobal(ctx context.Context) error {
	start := m.now()

	select {
	case m.submission <- struct{}{}:
		GlobalWaitSeconds.Observe(m.now().Sub(start).Seconds())

		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire submission slot: %w", ctx.Err())
	}
}

// ReleaseGlobal implements Table.
func (m *Manager) ReleaseGlobal() {
	select {
	case <-m.submission:
	default:
		m.logger.Warn("release-global-without-hold")
	}
}

// Snapshot implements Table.
func (m *Manager) Snapshot() []Lock {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Lock, 0, len(m.locks))
	for _, lock := range m.locks {
		if now.Before(lock.ExpiresAt) {
			out = append(out, *lock)
		}
	}

	return out
}

// sweepLocked drops expired entries. Callers hold m.mu.
func (m *Manager) sweepLocked(now time.Time) {
	for key, lock := range m.locks {
		if !now.Before(lock.ExpiresAt) {
			delete(m.locks, key)
			SweptTotal.Inc()
		}
	}
	ActiveLocks.Set(float64(len(m.locks)))
}
