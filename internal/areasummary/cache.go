package areasummary

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/joeblew999/plat-broadband/internal/selection"
)

// CachingFetcher remembers successful fetches per geography for a fixed TTL.
// Errors are never cached.
type CachingFetcher struct {
	next  Fetcher
	cache *ttlcache.Cache[string, []Counts] // nil when caching is disabled
}

var _ Fetcher = (*CachingFetcher)(nil)

// NewCachingFetcher wraps next. A non-positive ttl disables caching.
func NewCachingFetcher(next Fetcher, ttl time.Duration) *CachingFetcher {
	if ttl <= 0 {
		return &CachingFetcher{next: next}
	}
	return &CachingFetcher{
		next: next,
		cache: ttlcache.New[string, []Counts](
			ttlcache.WithTTL[string, []Counts](ttl),
			ttlcache.WithDisableTouchOnHit[string, []Counts](),
		),
	}
}

func cacheKey(geo selection.Geography) string {
	return geo.Type + ":" + geo.ID
}

// Fetch returns cached rows for geo or asks the wrapped fetcher.
func (c *CachingFetcher) Fetch(ctx context.Context, geo selection.Geography) ([]Counts, error) {
	if c.cache == nil {
		return c.next.Fetch(ctx, geo)
	}
	key := cacheKey(geo)
	if item := c.cache.Get(key); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}

	rows, err := c.next.Fetch(ctx, geo)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, rows, ttlcache.DefaultTTL)
	return rows, nil
}

// Len returns the number of cached geographies.
func (c *CachingFetcher) Len() int {
	if c.cache == nil {
		return 0
	}
	c.cache.DeleteExpired()
	return c.cache.Len()
}
