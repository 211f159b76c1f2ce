// ABOUTME: Redis-backed batch cache for multi-replica deployments
// ABOUTME: Serializes per-item errors as code+message and rehydrates them on hit

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/redis"
)

// cachedItem is the wire form of a Result inside Redis.
type cachedItem struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data,omitempty"`
	ErrCode string          `json:"err_code,omitempty"`
	ErrMsg  string          `json:"err_msg,omitempty"`
}

// RedisCache shares batch results across replicas through a Redis
// document store. Cache failures degrade to misses, never to errors.
type RedisCache struct {
	store  *redis.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a Redis batch cache writing entries with ttl.
func NewRedisCache(store *redis.Store, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		store:  store,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached results for key, if present and fresh.
func (c *RedisCache) Get(ctx context.Context, key string) ([]Result, bool) {
	var items []cachedItem
	found, err := c.store.GetJSON(ctx, key, &items)
	if err != nil {
		c.logger.Warn("batch cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !found {
		return nil, false
	}

	results := make([]Result, len(items))
	for i, it := range items {
		results[i] = Result{Name: it.Name, Data: it.Data}
		if it.ErrCode != "" || it.ErrMsg != "" {
			results[i].Err = rehydrateError(it.ErrCode, it.ErrMsg)
		}
	}
	return results, true
}

// Set stores results under key.
func (c *RedisCache) Set(ctx context.Context, key string, results []Result) {
	items := make([]cachedItem, len(results))
	for i, r := range results {
		items[i] = cachedItem{Name: r.Name, Data: r.Data}
		if r.Err == nil {
			continue
		}

		var ec *observability.ErrorContext
		if errors.As(r.Err, &ec) {
			items[i].ErrCode = ec.Code
			if ec.Err != nil {
				items[i].ErrMsg = ec.Err.Error()
			}
		} else {
			items[i].ErrMsg = r.Err.Error()
		}
	}

	if err := c.store.SetJSON(ctx, key, items, c.ttl); err != nil {
		c.logger.Warn("batch cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// rehydrateError rebuilds a taxonomy error from its cached code so a
// replayed batch keeps its error classes. Upstream status details are
// not preserved across the wire; the message text carries them.
func rehydrateError(code, msg string) error {
	if code == "" {
		return errors.New(msg)
	}

	category := observability.CategoryPermanent
	switch code {
	case observability.CodeUpstreamStatus, observability.CodeFetchTimeout:
		category = observability.CategoryTransient
	}
	return observability.NewErrorContext(code, category, "fetch").WithError(errors.New(msg))
}
