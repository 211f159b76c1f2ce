// ABOUTME: Refresh gate serializing concurrent refreshes of the same data type
// ABOUTME: Context-aware waiting on a broadcast channel, no goroutine leaks

package catalog

import (
	"context"
	"sync"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

// RefreshGate ensures at most one refresh runs per data type. Cache
// reads never take the gate; a waiter that acquires after another
// refresh finished is expected to re-check the cache before listing
// the upstream again.
type RefreshGate struct {
	mu     sync.Mutex
	active map[types.DataType]bool

	// broadcast is closed to wake all waiters, then recreated.
	broadcast chan struct{}
}

// NewRefreshGate creates a refresh gate.
func NewRefreshGate() *RefreshGate {
	return &RefreshGate{
		active:    make(map[types.DataType]bool),
		broadcast: make(chan struct{}),
	}
}

// signal wakes all waiters by closing and recreating the broadcast
// channel. Must be called with mu held.
func (g *RefreshGate) signal() {
	close(g.broadcast)
	g.broadcast = make(chan struct{})
}

// Acquire blocks until no other refresh for the data type is running,
// then marks it active. The returned release function is safe to call
// more than once.
func (g *RefreshGate) Acquire(ctx context.Context, dataType types.DataType) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()

	for g.active[dataType] {
		// Capture the current broadcast channel while holding the lock.
		wait := g.broadcast
		g.mu.Unlock()

		select {
		case <-wait:
			// State changed; re-acquire and re-check.
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		g.mu.Lock()
	}

	g.active[dataType] = true
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, dataType)
			g.signal()
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether a refresh for the data type is in progress.
func (g *RefreshGate) Busy(dataType types.DataType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[dataType]
}
