// ABOUTME: Fetch metrics collection for observability
// ABOUTME: Counters, latency percentiles, and per-feed statistics

package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot contains a point-in-time snapshot of all metrics.
type MetricsSnapshot struct {
	// Total upstream fetches attempted.
	FetchesTotal int64 `json:"fetches_total"`

	// Successful fetches.
	FetchesSuccess int64 `json:"fetches_success"`

	// Failed fetches.
	FetchesFailed int64 `json:"fetches_failed"`

	// Fetches that hit the per-item deadline.
	Timeouts int64 `json:"timeouts"`

	// Batch requests served from cache.
	CacheHits int64 `json:"cache_hits"`

	// Batch requests that went upstream.
	CacheMisses int64 `json:"cache_misses"`

	// Batch fetch runs executed.
	BatchesTotal int64 `json:"batches_total"`

	// Currently in-flight fetches.
	InFlight int64 `json:"in_flight"`

	// Timestamp of snapshot.
	Timestamp time.Time `json:"timestamp"`
}

// String returns a human-readable representation.
func (s *MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"fetches=%d (success=%d fail=%d timeout=%d) batches=%d cache=%d/%d inflight=%d",
		s.FetchesTotal, s.FetchesSuccess, s.FetchesFailed, s.Timeouts,
		s.BatchesTotal, s.CacheHits, s.CacheHits+s.CacheMisses, s.InFlight,
	)
}

// LatencyPercentiles contains latency distribution.
type LatencyPercentiles struct {
	P50 time.Duration `json:"p50"`
	P75 time.Duration `json:"p75"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
	Max time.Duration `json:"max"`
}

// FeedStat contains statistics for a specific feed name.
type FeedStat struct {
	TotalFetches   int64         `json:"total_fetches"`
	SuccessCount   int64         `json:"success_count"`
	FailureCount   int64         `json:"failure_count"`
	TotalLatency   time.Duration `json:"total_latency"`
	AverageLatency time.Duration `json:"average_latency"`
}

// feedStats holds per-feed metrics.
type feedStats struct {
	mu           sync.Mutex
	totalFetches int64
	successes    int64
	failures     int64
	latencies    []time.Duration
}

// FetchMetrics collects metrics for upstream fetch operations.
type FetchMetrics struct {
	// Atomic counters.
	fetchesTotal   atomic.Int64
	fetchesSuccess atomic.Int64
	fetchesFailed  atomic.Int64
	timeouts       atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	batchesTotal   atomic.Int64
	inFlight       atomic.Int64

	// Latency histogram (protected by mutex).
	mu        sync.RWMutex
	latencies []time.Duration

	// Per-feed stats keyed by feed name.
	feedStats map[string]*feedStats
}

// NewFetchMetrics creates a new metrics collector.
func NewFetchMetrics() *FetchMetrics {
	return &FetchMetrics{
		latencies: make([]time.Duration, 0, 1000),
		feedStats: make(map[string]*feedStats),
	}
}

// RecordFetch records one upstream fetch, attributed to a feed name.
func (m *FetchMetrics) RecordFetch(feed string, duration time.Duration, success bool) {
	m.fetchesTotal.Add(1)

	if success {
		m.fetchesSuccess.Add(1)
	} else {
		m.fetchesFailed.Add(1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, duration)

	// Limit latency slice size.
	if len(m.latencies) > 10000 {
		m.latencies = m.latencies[len(m.latencies)-5000:]
	}

	stats, ok := m.feedStats[feed]
	if !ok {
		stats = &feedStats{}
		m.feedStats[feed] = stats
	}
	m.mu.Unlock()

	stats.mu.Lock()
	stats.totalFetches++
	if success {
		stats.successes++
	} else {
		stats.failures++
	}
	stats.latencies = append(stats.latencies, duration)
	if len(stats.latencies) > 1000 {
		stats.latencies = stats.latencies[len(stats.latencies)-500:]
	}
	stats.mu.Unlock()
}

// RecordTimeout records a fetch that hit its deadline.
func (m *FetchMetrics) RecordTimeout() {
	m.timeouts.Add(1)
}

// RecordCacheHit records a batch served from cache.
func (m *FetchMetrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a batch that went upstream.
func (m *FetchMetrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordBatch records one batch fetch run.
func (m *FetchMetrics) RecordBatch() {
	m.batchesTotal.Add(1)
}

// IncrementInFlight increments the in-flight fetch counter.
func (m *FetchMetrics) IncrementInFlight() {
	m.inFlight.Add(1)
}

// DecrementInFlight decrements the in-flight fetch counter.
func (m *FetchMetrics) DecrementInFlight() {
	m.inFlight.Add(-1)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *FetchMetrics) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		FetchesTotal:   m.fetchesTotal.Load(),
		FetchesSuccess: m.fetchesSuccess.Load(),
		FetchesFailed:  m.fetchesFailed.Load(),
		Timeouts:       m.timeouts.Load(),
		CacheHits:      m.cacheHits.Load(),
		CacheMisses:    m.cacheMisses.Load(),
		BatchesTotal:   m.batchesTotal.Load(),
		InFlight:       m.inFlight.Load(),
		Timestamp:      time.Now(),
	}
}

// LatencyPercentiles returns latency distribution percentiles.
func (m *FetchMetrics) LatencyPercentiles() LatencyPercentiles {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return LatencyPercentiles{}
	}

	// Make a copy and sort.
	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	return LatencyPercentiles{
		P50: percentile(sorted, 50),
		P75: percentile(sorted, 75),
		P90: percentile(sorted, 90),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
		Max: sorted[len(sorted)-1],
	}
}

// percentile calculates the pth percentile of a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// FeedStats returns per-feed statistics.
func (m *FetchMetrics) FeedStats() map[string]*FeedStat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*FeedStat, len(m.feedStats))
	for name, stats := range m.feedStats {
		stats.mu.Lock()
		stat := &FeedStat{
			TotalFetches: stats.totalFetches,
			SuccessCount: stats.successes,
			FailureCount: stats.failures,
		}
		if len(stats.latencies) > 0 {
			var total time.Duration
			for _, lat := range stats.latencies {
				total += lat
			}
			stat.TotalLatency = total
			stat.AverageLatency = total / time.Duration(len(stats.latencies))
		}
		stats.mu.Unlock()
		result[name] = stat
	}
	return result
}

// Reset resets all metrics to zero.
func (m *FetchMetrics) Reset() {
	m.fetchesTotal.Store(0)
	m.fetchesSuccess.Store(0)
	m.fetchesFailed.Store(0)
	m.timeouts.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.batchesTotal.Store(0)
	m.inFlight.Store(0)

	m.mu.Lock()
	m.latencies = m.latencies[:0]
	m.feedStats = make(map[string]*feedStats)
	m.mu.Unlock()
}

// String returns a summary string.
func (m *FetchMetrics) String() string {
	snapshot := m.Snapshot()
	percentiles := m.LatencyPercentiles()

	var sb strings.Builder
	sb.WriteString(snapshot.String())
	sb.WriteString(fmt.Sprintf(" p50=%v p99=%v", percentiles.P50, percentiles.P99))
	return sb.String()
}
