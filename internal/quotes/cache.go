// Package quotes maintains the latest best bid/ask per instrument,
// refreshed by a bounded polling loop and optionally tightened between
// polls by the WebSocket market channel.
package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/types"
)

// Fetcher is the books API surface the cache polls.
type Fetcher interface {
	FetchBooks(ctx context.Context, instrumentIDs []string) ([]types.BookResponse, error)
}

// Config holds quote cache configuration.
type Config struct {
	// PollInterval is the base refresh cadence.
	PollInterval time.Duration
	// StaleCeiling is the maximum quote age decisions may rely on.
	StaleCeiling time.Duration
	// BackoffMax caps the exponential backoff after refresh failures.
	BackoffMax time.Duration
	Fetcher    Fetcher
	Logger     *zap.Logger
}

// Cache implements the quote surface used by the entry and stop-loss
// engines. Each refresh overwrites quotes and stamps observedAt; a
// quote older than the staleness ceiling is excluded from decisions.
type Cache struct {
	pollInterval time.Duration
	staleCeiling time.Duration
	backoffMax   time.Duration
	fetcher      Fetcher
	logger       *zap.Logger

	mu          sync.RWMutex
	quotes      map[string]types.Quote
	instruments []string
	failures    int
	lastRefresh time.Time

	now func() time.Time
}

// New validates cfg and builds a Cache.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.StaleCeiling <= 0 {
		return nil, fmt.Errorf("stale ceiling must be positive, got %s", cfg.StaleCeiling)
	}
	if cfg.BackoffMax < cfg.PollInterval {
		return nil, fmt.Errorf("backoff max %s below poll interval %s", cfg.BackoffMax, cfg.PollInterval)
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Cache{
		pollInterval: cfg.PollInterval,
		staleCeiling: cfg.StaleCeiling,
		backoffMax:   cfg.BackoffMax,
		fetcher:      cfg.Fetcher,
		logger:       cfg.Logger,
		quotes:       make(map[string]types.Quote),
		now:          time.Now,
	}, nil
}

// SetInstruments replaces the polled instrument set. Quotes for dropped
// instruments are evicted.
func (c *Cache) SetInstruments(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	for id := range c.quotes {
		if !keep[id] {
			delete(c.quotes, id)
		}
	}
	c.instruments = append([]string(nil), ids...)
	TrackedInstruments.Set(float64(len(ids)))
}

// Run polls until ctx is cancelled. The cadence stretches exponentially
// after consecutive failures, capped at BackoffMax, and snaps back to
// the base interval on the next success.
func (c *Cache) Run(ctx context.Context) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("quote-cache-stopped")
			return
		case <-timer.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("quote-refresh-failed",
					zap.Error(err),
					zap.Int("consecutive-failures", c.Failures()))
			}
			timer.Reset(c.nextDelay())
		}
	}
}

func (c *Cache) nextDelay() time.Duration {
	c.mu.RLock()
	failures := c.failures
	c.mu.RUnlock()

	if failures == 0 {
		return c.pollInterval
	}
	delay := c.pollInterval << failures
	if delay > c.backoffMax || delay <= 0 {
		delay = c.backoffMax
	}

	return delay
}

// Refresh fetches books for the current instrument set and overwrites
// the cached quotes.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.RLock()
	ids := append([]string(nil), c.instruments...)
	c.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	timer := time.Now()
	books, err := c.fetcher.FetchBooks(ctx, ids)
	RefreshDuration.Observe(time.Since(timer).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.failures++
		RefreshesTotal.WithLabelValues("error").Inc()

		return fmt.Errorf("fetch books: %w", err)
	}

	now := c.now()
	for i := range books {
		c.quotes[books[i].AssetID] = books[i].ToQuote(now)
	}
	c.failures = 0
	c.lastRefresh = now
	RefreshesTotal.WithLabelValues("ok").Inc()

	return nil
}

// ApplyBook folds one WebSocket book event into the cache between
// polls. Events for untracked instruments are ignored.
func (c *Cache) ApplyBook(msg *types.BookMessage) {
	if msg == nil || msg.AssetID == "" {
		return
	}

	book := types.BookResponse{
		AssetID: msg.AssetID,
		Market:  msg.Market,
		Bids:    msg.Bids,
		Asks:    msg.Asks,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.trackedLocked(msg.AssetID) {
		return
	}
	c.quotes[msg.AssetID] = book.ToQuote(c.now())
	WSUpdatesTotal.Inc()
}

// ApplyPriceChange folds top-of-book moves from a price_change event.
func (c *Cache) ApplyPriceChange(msg *types.PriceChangeMessage) {
	if msg == nil {
		return
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, change := range msg.PriceChanges {
		if !c.trackedLocked(change.AssetID) {
			continue
		}
		q, ok := c.quotes[change.AssetID]
		if !ok {
			q = types.Quote{InstrumentID: change.AssetID}
		}
		if bid, size := (types.PriceLevel{Price: change.BestBid, Size: "1"}).Float(); bid > 0 && size > 0 {
			q.BestBid = bid
			if q.BestBidSize == 0 {
				q.BestBidSize = size
			}
		}
		if ask, size := (types.PriceLevel{Price: change.BestAsk, Size: "1"}).Float(); ask > 0 && size > 0 {
			q.BestAsk = ask
			if q.BestAskSize == 0 {
				q.BestAskSize = size
			}
		}
		q.ObservedAt = now
		c.quotes[change.AssetID] = q
		WSUpdatesTotal.Inc()
	}
}

func (c *Cache) trackedLocked(id string) bool {
	for _, tracked := range c.instruments {
		if tracked == id {
			return true
		}
	}

	return false
}

// BestQuotes returns fresh quotes for the requested instruments,
// tolerant of partial results: stale or unknown instruments are simply
// absent from the map.
func (c *Cache) BestQuotes(instrumentIDs []string) map[string]types.Quote {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]types.Quote, len(instrumentIDs))
	for _, id := range instrumentIDs {
		q, ok := c.quotes[id]
		if !ok {
			continue
		}
		if q.StaleBy(now, c.staleCeiling) {
			StaleServedTotal.Inc()
			continue
		}
		out[id] = q
	}

	return out
}

// Quote returns the fresh quote for one instrument.
func (c *Cache) Quote(instrumentID string) (types.Quote, bool) {
	m := c.BestQuotes([]string{instrumentID})
	q, ok := m[instrumentID]

	return q, ok
}

// Failures reports consecutive failed refreshes, for watchdog checks.
func (c *Cache) Failures() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.failures
}

// Stale reports whether the cache as a whole has not refreshed within
// the staleness ceiling. Used by the watchdog's data-error streak.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.instruments) == 0 {
		return false
	}

	return c.lastRefresh.IsZero() || c.now().Sub(c.lastRefresh) > c.staleCeiling
}
