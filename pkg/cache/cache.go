// Package cache holds venue lookups that outlive a single snapshot
// refresh: resolved hourly markets and per-instrument order constraints
// such as tick size and minimum order size.
package cache

import "time"

// Cache is what the snapshot and metadata layers need from a store.
// Values carry a TTL and may be evicted at any time, so callers treat
// every miss as fetchable.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) bool
}
