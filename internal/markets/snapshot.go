package markets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/polymarket-updown/pkg/cache"
	"github.com/mselser95/polymarket-updown/pkg/types"
)

// GammaAPI resolves market slugs against the Gamma API.
type GammaAPI interface {
	FetchMarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error)
}

// PriceSource supplies the reference price at a window's open, used to
// stamp priceToBeat on newly resolved markets.
type PriceSource interface {
	ReferencePrice(ctx context.Context, symbol string, atOrBefore time.Time) (float64, error)
}

// Pair is one configured symbol/timeframe to keep resolved.
type Pair struct {
	Symbol    string
	Timeframe string
}

// Config holds snapshot configuration.
type Config struct {
	// Pairs are the symbol/timeframe combinations to resolve.
	Pairs []Pair
	// RefreshInterval is the cadence of the background refresh loop.
	RefreshInterval time.Duration
	// BackoffBase is the first retry delay after a failed refresh.
	// Doubles per consecutive failure up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Gamma       GammaAPI
	// Prices is optional; when nil, priceToBeat stays zero and entry
	// decisions treat the market as missing reference data.
	Prices PriceSource
	// MarketCache is optional; resolved rows are cached until expiry.
	MarketCache cache.Cache
	Logger      *zap.Logger
}

// Snapshot maintains the set of live Up/Down markets for the configured
// pairs. Refreshes are debounced: concurrent callers share one in-flight
// refresh, and consecutive failures back off exponentially.
type Snapshot struct {
	pairs           []Pair
	refreshInterval time.Duration
	backoffBase     time.Duration
	backoffMax      time.Duration
	gamma           GammaAPI
	prices          PriceSource
	marketCache     cache.Cache
	logger          *zap.Logger

	mu          sync.RWMutex
	markets     map[string]types.Market // keyed by slug
	inflight    chan struct{}
	lastErr     error
	lastRefresh time.Time
	failures    int
	nextTry     time.Time

	now func() time.Time
}

// New validates cfg and builds a Snapshot.
func New(cfg *Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("at least one symbol/timeframe pair is required")
	}
	for _, p := range cfg.Pairs {
		if p.Symbol == "" {
			return nil, fmt.Errorf("pair symbol cannot be empty")
		}
		if _, err := WindowDuration(p.Timeframe); err != nil {
			return nil, fmt.Errorf("pair %s: %w", p.Symbol, err)
		}
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", cfg.RefreshInterval)
	}
	if cfg.BackoffBase <= 0 {
		return nil, fmt.Errorf("backoff base must be positive, got %s", cfg.BackoffBase)
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		return nil, fmt.Errorf("backoff max %s below base %s", cfg.BackoffMax, cfg.BackoffBase)
	}
	if cfg.Gamma == nil {
		return nil, fmt.Errorf("gamma client cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Snapshot{
		pairs:           cfg.Pairs,
		refreshInterval: cfg.RefreshInterval,
		backoffBase:     cfg.BackoffBase,
		backoffMax:      cfg.BackoffMax,
		gamma:           cfg.Gamma,
		prices:          cfg.Prices,
		marketCache:     cfg.MarketCache,
		logger:          cfg.Logger,
		markets:         make(map[string]types.Market),
		now:             time.Now,
	}, nil
}

// Run refreshes the snapshot on the configured cadence until ctx is
// cancelled. Failed refreshes are retried with exponential backoff.
func (s *Snapshot) Run(ctx context.Context) {
	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("snapshot-refresh-failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshot-stopped")
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("snapshot-refresh-failed",
					zap.Error(err),
					zap.Int("consecutive-failures", s.Failures()))
			}
		}
	}
}

// Refresh resolves the current and next window for every configured
// pair. A refresh already in flight is joined rather than duplicated,
// and after a failure new refreshes are suppressed until the backoff
// deadline passes.
func (s *Snapshot) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if ch := s.inflight; ch != nil {
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.lastErr
	}
	if now := s.now(); now.Before(s.nextTry) {
		err := s.lastErr
		deadline := s.nextTry
		s.mu.Unlock()
		if err == nil {
			return fmt.Errorf("refresh backing off until %s", deadline.Format(time.RFC3339))
		}
		return fmt.Errorf("refresh backing off until %s: %w", deadline.Format(time.RFC3339), err)
	}
	ch := make(chan struct{})
	s.inflight = ch
	s.mu.Unlock()

	err := s.doRefresh(ctx)

	s.mu.Lock()
	s.lastErr = err
	s.lastRefresh = s.now()
	if err != nil {
		s.failures++
		delay := s.backoffBase << (s.failures - 1)
		if delay > s.backoffMax || delay <= 0 {
			delay = s.backoffMax
		}
		s.nextTry = s.now().Add(delay)
		RefreshesTotal.WithLabelValues("error").Inc()
	} else {
		s.failures = 0
		s.nextTry = time.Time{}
		RefreshesTotal.WithLabelValues("ok").Inc()
	}
	s.inflight = nil
	close(ch)
	s.mu.Unlock()

	return err
}

func (s *Snapshot) doRefresh(ctx context.Context) error {
	now := s.now()

	var errs []string
	for _, pair := range s.pairs {
		d, err := WindowDuration(pair.Timeframe)
		if err != nil {
			return err
		}
		start := now.UTC().Truncate(d)

		for _, windowStart := range []time.Time{start, start.Add(d)} {
			if err := s.resolveWindow(ctx, pair, windowStart); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	s.prune(now)

	if len(errs) > 0 {
		return fmt.Errorf("resolve markets: %s", strings.Join(errs, "; "))
	}

	return nil
}

// resolveWindow ensures the market for one settlement window is in the
// snapshot, consulting the metadata cache before the Gamma API. Windows
// whose market does not exist yet are not errors.
func (s *Snapshot) resolveWindow(ctx context.Context, pair Pair, windowStart time.Time) error {
	slug := Slug(pair.Symbol, pair.Timeframe, windowStart)

	s.mu.RLock()
	existing, ok := s.markets[slug]
	s.mu.RUnlock()
	if ok {
		if existing.PriceToBeat == 0 {
			s.stampPriceToBeat(ctx, slug, pair.Symbol, windowStart)
		}
		return nil
	}

	market, err := s.lookup(ctx, pair, slug)
	if err != nil {
		if strings.Contains(err.Error(), "market not found") {
			s.logger.Debug("market-window-unlisted", zap.String("slug", slug))
			return nil
		}
		return fmt.Errorf("%s: %w", slug, err)
	}

	s.mu.Lock()
	s.markets[slug] = *market
	ActiveMarkets.Set(float64(len(s.markets)))
	s.mu.Unlock()

	s.logger.Info("market-resolved",
		zap.String("slug", slug),
		zap.String("condition-id", market.ConditionID),
		zap.Time("expiry", market.Expiry),
		zap.Float64("price-to-beat", market.PriceToBeat))

	if market.PriceToBeat == 0 {
		s.stampPriceToBeat(ctx, slug, pair.Symbol, windowStart)
	}

	return nil
}

func (s *Snapshot) lookup(ctx context.Context, pair Pair, slug string) (*types.Market, error) {
	cacheKey := "market:" + slug
	if s.marketCache != nil {
		if cached, ok := s.marketCache.Get(cacheKey); ok {
			if m, ok := cached.(types.Market); ok {
				return &m, nil
			}
		}
	}

	timer := time.Now()
	row, err := s.gamma.FetchMarketBySlug(ctx, slug)
	ResolveDuration.Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, err
	}
	if row.Closed {
		return nil, fmt.Errorf("market not found: %s closed", slug)
	}

	market, err := row.ToMarket(pair.Symbol, pair.Timeframe, 0)
	if err != nil {
		return nil, err
	}

	if s.marketCache != nil {
		if ttl := market.Expiry.Sub(s.now()) + time.Minute; ttl > time.Minute {
			s.marketCache.Set(cacheKey, *market, ttl)
		}
	}

	return market, nil
}

// stampPriceToBeat fills priceToBeat from the reference feed at window
// open. Failures leave it zero for the next refresh to retry.
func (s *Snapshot) stampPriceToBeat(ctx context.Context, slug, symbol string, windowStart time.Time) {
	if s.prices == nil {
		return
	}

	price, err := s.prices.ReferencePrice(ctx, symbol, windowStart)
	if err != nil {
		s.logger.Warn("price-to-beat-unavailable",
			zap.String("slug", slug),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	if m, ok := s.markets[slug]; ok && m.PriceToBeat == 0 {
		m.PriceToBeat = price
		s.markets[slug] = m
	}
	s.mu.Unlock()
}

// prune drops expired markets.
func (s *Snapshot) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for slug, m := range s.markets {
		if m.Expired(now) {
			delete(s.markets, slug)
			s.logger.Debug("market-expired", zap.String("slug", slug))
		}
	}
	ActiveMarkets.Set(float64(len(s.markets)))
}

// ListActiveMarkets returns unexpired markets matching the given
// symbols and timeframes, soonest expiry first. Empty filters match
// everything. When nothing matches, one refresh is attempted before
// giving up.
func (s *Snapshot) ListActiveMarkets(ctx context.Context, symbols, timeframes []string) []types.Market {
	out := s.listLocked(symbols, timeframes)
	if len(out) > 0 {
		return out
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Debug("list-refresh-failed", zap.Error(err))
	}

	return s.listLocked(symbols, timeframes)
}

func (s *Snapshot) listLocked(symbols, timeframes []string) []types.Market {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Market
	for _, m := range s.markets {
		if m.Expired(now) {
			continue
		}
		if len(symbols) > 0 && !containsFold(symbols, m.Symbol) {
			continue
		}
		if len(timeframes) > 0 && !containsFold(timeframes, m.Timeframe) {
			continue
		}
		out = append(out, m)
	}

	sortByExpiry(out)

	return out
}

// Current returns the market for the window containing now for one
// symbol/timeframe, if resolved.
func (s *Snapshot) Current(symbol, timeframe string) (types.Market, bool) {
	now := s.now()
	start, err := WindowStart(timeframe, now)
	if err != nil {
		return types.Market{}, false
	}
	slug := Slug(symbol, timeframe, start)

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[slug]
	if !ok || m.Expired(now) {
		return types.Market{}, false
	}

	return m, true
}

// Failures reports consecutive failed refreshes, for watchdog checks.
func (s *Snapshot) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.failures
}

// LastRefresh reports when a refresh last completed.
func (s *Snapshot) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastRefresh
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}

	return false
}

func sortByExpiry(ms []types.Market) {
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].Expiry.Before(ms[j].Expiry)
	})
}
