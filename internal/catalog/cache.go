// ABOUTME: BadgerDB cache holding the processed catalog per data type
// ABOUTME: Entries expire via badger TTL plus an explicit staleness check on read

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

const (
	cacheKeyPrefix = "catalog:"

	// DefaultCacheTTL bounds how long a processed catalog is served
	// without a refresh.
	DefaultCacheTTL = 6 * time.Hour
)

// CacheConfig holds configuration for the catalog cache.
type CacheConfig struct {
	// Path to the BadgerDB directory. Ignored when InMemory is true.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// TTL for cached catalogs. Zero uses DefaultCacheTTL.
	TTL time.Duration

	// Now is the clock used for staleness checks. Nil uses time.Now.
	Now func() time.Time

	// Logger for BadgerDB internals. Nil disables badger logging.
	Logger badger.Logger
}

// Snapshot is one cached catalog: the full processed listing and when
// it was fetched.
type Snapshot struct {
	Systems   []types.OperatorRecord `json:"systems"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Cache stores processed catalogs keyed by data type.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

// NewCache opens the catalog cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening catalog cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Cache{db: db, ttl: ttl, now: now}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func cacheKey(dataType types.DataType) []byte {
	return []byte(cacheKeyPrefix + string(dataType))
}

// Put stores the full processed catalog for a data type, stamped with
// the current fetch time.
func (c *Cache) Put(ctx context.Context, dataType types.DataType, systems []types.OperatorRecord) error {
	snap := Snapshot{
		Systems:   systems,
		FetchedAt: c.now().UTC(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return observability.NewCacheError("catalog_cache_put", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(dataType), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return observability.NewCacheError("catalog_cache_put", err)
	}
	return nil
}

// Get retrieves the cached catalog for a data type.
// Returns (snapshot, true, nil) on a fresh hit, (nil, false, nil) when
// absent or stale. The staleness check uses the injected clock, so an
// entry badger has not evicted yet still misses once it ages out.
func (c *Cache) Get(ctx context.Context, dataType types.DataType) (*Snapshot, bool, error) {
	var snap *Snapshot

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(dataType))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting cache entry: %w", err)
		}

		return item.Value(func(val []byte) error {
			snap = &Snapshot{}
			if err := json.Unmarshal(val, snap); err != nil {
				return fmt.Errorf("decoding cache entry: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, false, observability.NewCacheError("catalog_cache_get", err)
	}
	if snap == nil {
		return nil, false, nil
	}

	if c.now().Sub(snap.FetchedAt) > c.ttl {
		return nil, false, nil
	}

	return snap, true, nil
}

// Delete removes the cached catalog for a data type.
func (c *Cache) Delete(ctx context.Context, dataType types.DataType) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(cacheKey(dataType))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return observability.NewCacheError("catalog_cache_delete", err)
	}
	return nil
}

// Count returns the number of cached catalogs.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	var count int64

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(cacheKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, observability.NewCacheError("catalog_cache_count", err)
	}

	return count, nil
}

// TTL returns the cache TTL.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
