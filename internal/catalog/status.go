// ABOUTME: Per-data-type refresh status tracking for the catalog service
// ABOUTME: Thread-safe map of refresh state, timing, and record counts

package catalog

import (
	"sync"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/types"
)

// RefreshState is the current state of one data type's refresh loop.
type RefreshState string

const (
	// StatePending means no refresh has completed yet.
	StatePending RefreshState = "pending"

	// StateIdle means the last refresh succeeded.
	StateIdle RefreshState = "idle"

	// StateRefreshing means a refresh is in progress.
	StateRefreshing RefreshState = "refreshing"

	// StateFailed means the last refresh failed.
	StateFailed RefreshState = "failed"
)

// RefreshStatus describes one data type's refresh health, shaped for
// the status endpoint.
type RefreshStatus struct {
	DataType      types.DataType `json:"data_type"`
	State         RefreshState   `json:"state"`
	LastRefresh   time.Time      `json:"last_refresh"`
	NextScheduled time.Time      `json:"next_scheduled"`
	LastError     string         `json:"last_error,omitempty"`
	SystemCount   int            `json:"system_count"`
}

// TimeSinceRefresh returns the age of the last successful refresh, or
// zero if none has happened.
func (s *RefreshStatus) TimeSinceRefresh() time.Duration {
	if s.LastRefresh.IsZero() {
		return 0
	}
	return time.Since(s.LastRefresh)
}

// StatusTracker manages refresh status for all data types.
type StatusTracker struct {
	mu       sync.RWMutex
	statuses map[types.DataType]*RefreshStatus
}

// NewStatusTracker creates an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		statuses: make(map[types.DataType]*RefreshStatus),
	}
}

// Register adds a data type in the pending state.
func (t *StatusTracker) Register(dataType types.DataType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statuses[dataType] = &RefreshStatus{
		DataType: dataType,
		State:    StatePending,
	}
}

// Get returns a copy of one data type's status, or nil if unknown.
func (t *StatusTracker) Get(dataType types.DataType) *RefreshStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status, ok := t.statuses[dataType]
	if !ok {
		return nil
	}
	cp := *status
	return &cp
}

// GetAll returns a copy of every tracked status.
func (t *StatusTracker) GetAll() map[types.DataType]*RefreshStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[types.DataType]*RefreshStatus, len(t.statuses))
	for dataType, status := range t.statuses {
		cp := *status
		result[dataType] = &cp
	}
	return result
}

// SetState updates the refresh state.
func (t *StatusTracker) SetState(dataType types.DataType, state RefreshState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[dataType]; ok {
		s.State = state
	}
}

// SetLastRefresh records a successful refresh time.
func (t *StatusTracker) SetLastRefresh(dataType types.DataType, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[dataType]; ok {
		s.LastRefresh = at
	}
}

// SetNextScheduled records when the next timed refresh will run.
func (t *StatusTracker) SetNextScheduled(dataType types.DataType, next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[dataType]; ok {
		s.NextScheduled = next
	}
}

// SetError records the last refresh error; empty clears it.
func (t *StatusTracker) SetError(dataType types.DataType, err string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[dataType]; ok {
		s.LastError = err
	}
}

// SetCount records how many records the last refresh loaded.
func (t *StatusTracker) SetCount(dataType types.DataType, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.statuses[dataType]; ok {
		s.SystemCount = count
	}
}
