package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Ristretto sizing for this workload: a handful of markets per symbol
// plus one metadata record per instrument, so item counts stay in the
// hundreds and every entry costs 1.
const (
	defaultNumCounters = 10_000
	defaultMaxItems    = 1_000
	defaultBufferItems = 64
)

// Config sizes the Ristretto-backed cache. Zero fields take the
// defaults above.
type Config struct {
	NumCounters int64 // keys tracked for admission frequency
	MaxItems    int64 // eviction threshold, in entries
	BufferItems int64 // keys per Get buffer
	Logger      *zap.Logger
}

// RistrettoCache backs the shared lookup cache with ristretto.
type RistrettoCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// New creates a Ristretto-backed cache.
func New(cfg *Config) (*RistrettoCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	counters := cfg.NumCounters
	if counters <= 0 {
		counters = defaultNumCounters
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	buffer := cfg.BufferItems
	if buffer <= 0 {
		buffer = defaultBufferItems
	}

	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxItems,
		BufferItems: buffer,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &RistrettoCache{
		cache:  inner,
		logger: cfg.Logger.With(zap.String("component", "cache")),
	}, nil
}

// Get retrieves a value, counting hits and misses.
func (r *RistrettoCache) Get(key string) (any, bool) {
	value, found := r.cache.Get(key)
	if found {
		HitsTotal.Inc()
	} else {
		MissesTotal.Inc()
	}

	return value, found
}

// Set stores a value with a TTL at cost 1. Ristretto admits
// asynchronously, so a false return means the write was dropped.
func (r *RistrettoCache) Set(key string, value any, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		SetsTotal.Inc()
	}

	return ok
}

// Wait blocks until buffered writes are applied.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}

// Close releases the cache's goroutines.
func (r *RistrettoCache) Close() {
	r.cache.Close()
	r.logger.Debug("cache-closed")
}
