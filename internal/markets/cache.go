package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-updown/pkg/cache"
)

// CachedMetadataClient wraps MetadataClient with a long-TTL cache so
// tick sizes and minimum order sizes are fetched once per instrument.
type CachedMetadataClient struct {
	client *MetadataClient
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedMetadataClient creates a new cached metadata client.
func NewCachedMetadataClient(client *MetadataClient, cache cache.Cache) *CachedMetadataClient {
	return &CachedMetadataClient{
		client: client,
		cache:  cache,
		ttl:    24 * time.Hour,
	}
}

// TokenMetadata holds cached metadata for an instrument.
type TokenMetadata struct {
	TickSize     float64
	MinOrderSize float64
	FetchedAt    time.Time
}

// GetTokenMetadata fetches instrument metadata, serving from cache when
// possible.
func (c *CachedMetadataClient) GetTokenMetadata(ctx context.Context, tokenID string) (tickSize, minOrderSize float64, err error) {
	cacheKey := fmt.Sprintf("metadata:%s", tokenID)
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if meta, ok := cached.(*TokenMetadata); ok {
				MetadataCacheHitsTotal.Inc()
				return meta.TickSize, meta.MinOrderSize, nil
			}
		}
		MetadataCacheMissesTotal.Inc()
	}

	start := time.Now()
	tickSize, minOrderSize, err = c.client.FetchTokenMetadata(ctx, tokenID)
	MetadataFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return tickSize, minOrderSize, err
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, &TokenMetadata{
			TickSize:     tickSize,
			MinOrderSize: minOrderSize,
			FetchedAt:    time.Now(),
		}, c.ttl)
	}

	return tickSize, minOrderSize, nil
}

// UpdateTickSize rewrites a cached tick size in place after a
// tick_size_change event. Unknown instruments are a no-op; they will be
// fetched with the new value on first access.
func (c *CachedMetadataClient) UpdateTickSize(tokenID string, newTickSize float64) {
	if c.cache == nil {
		return
	}

	cacheKey := fmt.Sprintf("metadata:%s", tokenID)
	if cached, ok := c.cache.Get(cacheKey); ok {
		if meta, ok := cached.(*TokenMetadata); ok {
			c.cache.Set(cacheKey, &TokenMetadata{
				TickSize:     newTickSize,
				MinOrderSize: meta.MinOrderSize,
				FetchedAt:    time.Now(),
			}, c.ttl)
		}
	}
}
