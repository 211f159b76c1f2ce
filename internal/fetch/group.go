// ABOUTME: Concurrent named-URL fan-out with order-preserving results
// ABOUTME: One slow or failing item never affects its siblings

package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetlens-io/fleetlens/internal/observability"
)

const defaultConcurrency = 32

// Item names one URL to fetch.
type Item struct {
	Name string
	URL  string
}

// Result is the outcome for one item. Data is set on success, Err on
// failure; results match input names one-to-one.
type Result struct {
	Name string
	Data json.RawMessage
	Err  error
}

// GroupConfig holds configuration for the fetch group.
type GroupConfig struct {
	// Fetcher performs the individual requests. Required.
	Fetcher *Fetcher

	// Concurrency caps simultaneous requests per batch.
	Concurrency int

	// Cache short-circuits identical batches. Optional.
	Cache BatchCache

	// Metrics collects fetch counters. Optional.
	Metrics *observability.FetchMetrics

	// Logger for batch diagnostics. Optional.
	Logger *slog.Logger
}

// Group fans batches of feed fetches out under a bounded semaphore.
type Group struct {
	fetcher     *Fetcher
	concurrency int
	cache       BatchCache
	metrics     *observability.FetchMetrics
	logger      *slog.Logger
}

// NewGroup creates a fetch group.
func NewGroup(cfg GroupConfig) *Group {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Group{
		fetcher:     cfg.Fetcher,
		concurrency: concurrency,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// FetchMany retrieves every item concurrently. Results preserve input
// order, and a per-item failure lands in that Result.Err alone. An
// identical batch inside the cache TTL replays the previous results
// unchanged, including their errors.
func (g *Group) FetchMany(ctx context.Context, items []Item) []Result {
	if len(items) == 0 {
		return nil
	}

	ctx, span := observability.StartSpan(ctx, "fetch.batch",
		trace.WithAttributes(attribute.Int("batch.size", len(items))))
	defer span.End()

	key := BatchKey(items)
	if g.cache != nil {
		if cached, ok := g.cache.Get(ctx, key); ok && len(cached) == len(items) {
			if g.metrics != nil {
				g.metrics.RecordCacheHit()
			}
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached
		}
		if g.metrics != nil {
			g.metrics.RecordCacheMiss()
		}
	}

	results := make([]Result, len(items))
	sem := make(chan struct{}, g.concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item Item) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = g.fetchOne(ctx, item)
		}(i, item)
	}
	wg.Wait()

	if g.metrics != nil {
		g.metrics.RecordBatch()
	}
	if g.cache != nil {
		g.cache.Set(ctx, key, results)
	}
	return results
}

// FetchSingle retrieves one URL, bypassing the batch cache.
func (g *Group) FetchSingle(ctx context.Context, url string) ([]byte, error) {
	if g.metrics != nil {
		g.metrics.IncrementInFlight()
		defer g.metrics.DecrementInFlight()
	}

	start := time.Now()
	data, err := g.fetcher.Fetch(ctx, url)
	if g.metrics != nil {
		g.metrics.RecordFetch("proxy_single", time.Since(start), err == nil)
		if observability.IsTimeout(err) {
			g.metrics.RecordTimeout()
		}
	}
	return data, err
}

func (g *Group) fetchOne(ctx context.Context, item Item) Result {
	if g.metrics != nil {
		g.metrics.IncrementInFlight()
		defer g.metrics.DecrementInFlight()
	}

	start := time.Now()
	data, err := g.fetcher.Fetch(ctx, item.URL)
	if g.metrics != nil {
		g.metrics.RecordFetch(item.Name, time.Since(start), err == nil)
		if observability.IsTimeout(err) {
			g.metrics.RecordTimeout()
		}
	}

	if err != nil {
		// Feed URLs can carry key/token query params.
		g.logger.Debug("feed fetch failed",
			slog.String("name", item.Name),
			slog.String("url", observability.RedactURL(item.URL)),
			slog.String("error", err.Error()),
		)
		return Result{Name: item.Name, Err: err}
	}
	return Result{Name: item.Name, Data: json.RawMessage(data)}
}
