// ABOUTME: Batch result cache: interface, key derivation, and in-process backend
// ABOUTME: An identical request set replays its previous results for a short TTL

package fetch

import (
	"context"
	"time"

	"github.com/bluele/gcache"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

// BatchCache stores whole batch results keyed by request identity.
// A hit returns the prior results unchanged, per-item errors included;
// implementations bound entry lifetime.
type BatchCache interface {
	Get(ctx context.Context, key string) ([]Result, bool)
	Set(ctx context.Context, key string, results []Result)
}

// BatchKey derives the cache identity for a set of items: a hash of
// the sorted URL list. Names and item order do not affect identity.
func BatchKey(items []Item) string {
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	return types.Fingerprint(urls)
}

// MemoryCacheConfig holds configuration for the in-process cache.
type MemoryCacheConfig struct {
	// TTL before a cached batch is dropped.
	TTL time.Duration

	// MaxEntries bounds the LRU.
	MaxEntries int
}

// MemoryCache is a per-process LRU batch cache.
type MemoryCache struct {
	cache gcache.Cache
}

// NewMemoryCache creates an LRU batch cache with a uniform TTL.
func NewMemoryCache(cfg MemoryCacheConfig) *MemoryCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = 256
	}

	return &MemoryCache{
		cache: gcache.New(size).
			LRU().
			Expiration(ttl).
			Build(),
	}
}

// Get returns the cached results for key, if present and fresh.
func (c *MemoryCache) Get(_ context.Context, key string) ([]Result, bool) {
	cached, err := c.cache.Get(key)
	if err != nil {
		return nil, false
	}
	results, ok := cached.([]Result)
	if !ok {
		return nil, false
	}
	return results, true
}

// Set stores results under key.
func (c *MemoryCache) Set(_ context.Context, key string, results []Result) {
	_ = c.cache.Set(key, results)
}
