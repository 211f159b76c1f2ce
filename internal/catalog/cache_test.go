// ABOUTME: Tests for the catalog cache with an injected clock
// ABOUTME: Covers roundtrips, logical staleness, deletion, and counting

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

// fakeClock is a settable clock for staleness tests.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func setupCache(t *testing.T, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache, err := NewCache(CacheConfig{
		InMemory: true,
		TTL:      ttl,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	return cache, clock
}

func sampleRecords() []types.OperatorRecord {
	return []types.OperatorRecord{
		{SystemID: "a", Name: "Oslo Bysykkel", Location: "Oslo", CountryCode: "NO", DiscoveryURL: "https://a/gbfs.json"},
		{SystemID: "b", Name: "Divvy", Location: "Chicago", CountryCode: "US", DiscoveryURL: "https://b/gbfs.json"},
	}
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	cache, clock := setupCache(t, 6*time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, types.DataTypeGBFS, sampleRecords()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	snap, ok, err := cache.Get(ctx, types.DataTypeGBFS)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if len(snap.Systems) != 2 {
		t.Errorf("systems = %d, want 2", len(snap.Systems))
	}
	if snap.Systems[0].SystemID != "a" {
		t.Errorf("first system = %q, want a", snap.Systems[0].SystemID)
	}
	if !snap.FetchedAt.Equal(clock.Now()) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, clock.Now())
	}
}

func TestCache_MissOnAbsentType(t *testing.T) {
	t.Parallel()

	cache, _ := setupCache(t, 6*time.Hour)

	if err := cache.Put(context.Background(), types.DataTypeGBFS, sampleRecords()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, ok, err := cache.Get(context.Background(), types.DataTypeGTFS)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected miss for uncached data type")
	}
}

func TestCache_StalenessOnRead(t *testing.T) {
	t.Parallel()

	cache, clock := setupCache(t, 6*time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, types.DataTypeGBFS, sampleRecords()); err != nil {
		t.Fatalf("Put: %v", err)
	}

	clock.Advance(5 * time.Hour)
	if _, ok, _ := cache.Get(ctx, types.DataTypeGBFS); !ok {
		t.Error("entry within TTL should hit")
	}

	clock.Advance(2 * time.Hour)
	if _, ok, _ := cache.Get(ctx, types.DataTypeGBFS); ok {
		t.Error("entry past TTL should miss even before badger evicts it")
	}
}

func TestCache_PutReplacesSnapshot(t *testing.T) {
	t.Parallel()

	cache, clock := setupCache(t, 6*time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, types.DataTypeGBFS, sampleRecords()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clock.Advance(1 * time.Hour)
	if err := cache.Put(ctx, types.DataTypeGBFS, sampleRecords()[:1]); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	snap, ok, err := cache.Get(ctx, types.DataTypeGBFS)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(snap.Systems) != 1 {
		t.Errorf("systems = %d, want 1 (snapshot replaced wholesale)", len(snap.Systems))
	}
	if !snap.FetchedAt.Equal(clock.Now()) {
		t.Errorf("FetchedAt not restamped: %v", snap.FetchedAt)
	}
}

func TestCache_Delete(t *testing.T) {
	t.Parallel()

	cache, _ := setupCache(t, 6*time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, types.DataTypeGBFS, sampleRecords()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Delete(ctx, types.DataTypeGBFS); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, types.DataTypeGBFS); ok {
		t.Error("expected miss after delete")
	}

	// Deleting an absent key is not an error.
	if err := cache.Delete(ctx, types.DataTypeGTFS); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestCache_Count(t *testing.T) {
	t.Parallel()

	cache, _ := setupCache(t, 6*time.Hour)
	ctx := context.Background()

	if n, _ := cache.Count(ctx); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}

	_ = cache.Put(ctx, types.DataTypeGBFS, sampleRecords())
	_ = cache.Put(ctx, types.DataTypeGTFS, nil)

	if n, _ := cache.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestCache_EmptyCatalogIsCacheable(t *testing.T) {
	t.Parallel()

	cache, _ := setupCache(t, 6*time.Hour)
	ctx := context.Background()

	if err := cache.Put(ctx, types.DataTypeGBFS, []types.OperatorRecord{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	snap, ok, err := cache.Get(ctx, types.DataTypeGBFS)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(snap.Systems) != 0 {
		t.Errorf("systems = %d, want 0", len(snap.Systems))
	}
}
