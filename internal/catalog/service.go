// ABOUTME: Catalog service owning cache reads and per-data-type refresh loops
// ABOUTME: Tickers plus manual triggers, backoff on failure, status tracking

package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/resilience"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// SystemLister lists the upstream catalog for one data type.
type SystemLister interface {
	ListSystems(ctx context.Context, dataType types.DataType) ([]types.OperatorRecord, error)
}

// OperatorSet is one served catalog listing.
type OperatorSet struct {
	Operators []types.OperatorRecord
	FetchedAt time.Time
	CacheHit  bool
}

// ServiceConfig configures the catalog service.
type ServiceConfig struct {
	// Client lists the upstream catalog. Required.
	Client SystemLister

	// Cache stores processed catalogs. Required.
	Cache *Cache

	// DataTypes to keep refreshed in the background. Empty defaults
	// to gbfs only; ListOperators still serves any valid data type.
	DataTypes []types.DataType

	// Interval between background refreshes. Zero uses the cache TTL
	// default so entries never age out silently.
	Interval time.Duration

	// RunInitial refreshes immediately on Start.
	RunInitial bool

	// Retry configures backoff for failed background refreshes.
	Retry resilience.BackoffConfig

	// Logger for structured logging. Nil uses slog.Default.
	Logger *slog.Logger

	// Audit records refresh outcomes. Optional.
	Audit *observability.AuditLogger

	// OnRefreshed is invoked after every successful refresh, forced or
	// scheduled. Optional; used to publish catalog update events.
	OnRefreshed func(dataType types.DataType, count int, took time.Duration)

	// Now is the clock for result stamps. Nil uses time.Now.
	Now func() time.Time
}

// refreshEntry is one data type's background loop handle.
type refreshEntry struct {
	dataType types.DataType
	trigger  chan struct{}
}

// Service serves catalog listings and keeps them refreshed.
type Service struct {
	config  ServiceConfig
	status  *StatusTracker
	gate    *RefreshGate
	entries map[types.DataType]*refreshEntry
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates the catalog service and registers its data types.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Client == nil {
		return nil, errors.New("catalog client is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("catalog cache is required")
	}
	if len(cfg.DataTypes) == 0 {
		cfg.DataTypes = []types.DataType{types.DataTypeGBFS}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = cfg.Cache.TTL()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		config:  cfg,
		status:  NewStatusTracker(),
		gate:    NewRefreshGate(),
		entries: make(map[types.DataType]*refreshEntry, len(cfg.DataTypes)),
		now:     now,
	}
	for _, dataType := range cfg.DataTypes {
		s.entries[dataType] = &refreshEntry{
			dataType: dataType,
			trigger:  make(chan struct{}, 1),
		}
		s.status.Register(dataType)
	}
	return s, nil
}

// Start launches the background refresh loops.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("catalog service already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	for _, entry := range s.entries {
		s.wg.Add(1)
		go s.runRefreshLoop(ctx, entry)
	}

	s.config.Logger.Info("catalog service started",
		slog.Int("data_types", len(s.entries)),
		slog.Duration("interval", s.config.Interval),
	)
	return nil
}

// Stop halts the refresh loops and waits for them.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.config.Logger.Info("catalog service stopped")
}

// IsRunning reports whether the background loops are active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetOnRefreshed installs the hook fired after every successful
// refresh. Must be called before Start and before the service is
// exposed to callers.
func (s *Service) SetOnRefreshed(fn func(dataType types.DataType, count int, took time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.OnRefreshed = fn
}

// TriggerRefresh queues a background refresh for the data type. The
// send is non-blocking: a refresh already pending satisfies the request.
func (s *Service) TriggerRefresh(dataType types.DataType) error {
	entry, ok := s.entries[dataType]
	if !ok {
		return fmt.Errorf("no refresh loop for data type %q", dataType)
	}

	select {
	case entry.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Statuses returns the refresh status of every managed data type.
func (s *Service) Statuses() map[types.DataType]*RefreshStatus {
	return s.status.GetAll()
}

// ListOperators serves the catalog for a data type. Unless forced it
// prefers the cache; a miss (or force) lists the upstream
// synchronously and stores the result. Forced failures surface to the
// caller; the previous cache entry is left untouched.
func (s *Service) ListOperators(ctx context.Context, dataType types.DataType, force bool) (*OperatorSet, error) {
	if !force {
		if set, ok := s.cachedSet(ctx, dataType); ok {
			return set, nil
		}
	}
	return s.refreshOnce(ctx, dataType, force)
}

// Refresh forces one synchronous refresh and returns the record count.
// This is the NATS command and HTTP force entry point.
func (s *Service) Refresh(ctx context.Context, dataType types.DataType) (int, error) {
	set, err := s.refreshOnce(ctx, dataType, true)
	if err != nil {
		return 0, err
	}
	return len(set.Operators), nil
}

// cachedSet reads the cache, degrading IO errors to a miss.
func (s *Service) cachedSet(ctx context.Context, dataType types.DataType) (*OperatorSet, bool) {
	snap, ok, err := s.config.Cache.Get(ctx, dataType)
	if err != nil {
		s.config.Logger.Warn("catalog cache read failed",
			slog.String("data_type", string(dataType)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &OperatorSet{
		Operators: snap.Systems,
		FetchedAt: snap.FetchedAt,
		CacheHit:  true,
	}, true
}

// refreshOnce performs one gated listing and store. A waiter that
// acquired behind an in-flight refresh re-checks the cache first so
// the upstream is listed once, not once per waiter.
func (s *Service) refreshOnce(ctx context.Context, dataType types.DataType, force bool) (*OperatorSet, error) {
	release, err := s.gate.Acquire(ctx, dataType)
	if err != nil {
		return nil, err
	}
	defer release()

	if !force {
		if set, ok := s.cachedSet(ctx, dataType); ok {
			return set, nil
		}
	}

	start := s.now()
	s.status.SetState(dataType, StateRefreshing)

	records, err := s.config.Client.ListSystems(ctx, dataType)
	if err != nil {
		s.status.SetState(dataType, StateFailed)
		s.status.SetError(dataType, err.Error())
		if s.config.Audit != nil {
			s.config.Audit.LogCatalogRefresh(ctx, string(dataType), force, false, err.Error())
		}
		return nil, err
	}

	if err := s.config.Cache.Put(ctx, dataType, records); err != nil {
		// Serve the fresh listing even when the store fails.
		s.config.Logger.Warn("storing catalog snapshot failed",
			slog.String("data_type", string(dataType)),
			slog.String("error", err.Error()),
		)
	}

	took := s.now().Sub(start)
	s.status.SetState(dataType, StateIdle)
	s.status.SetLastRefresh(dataType, s.now())
	s.status.SetError(dataType, "")
	s.status.SetCount(dataType, len(records))

	if s.config.Audit != nil {
		s.config.Audit.LogCatalogRefresh(ctx, string(dataType), force, true,
			fmt.Sprintf("%d records", len(records)))
	}
	if s.config.OnRefreshed != nil {
		s.config.OnRefreshed(dataType, len(records), took)
	}

	return &OperatorSet{
		Operators: records,
		FetchedAt: s.now().UTC(),
	}, nil
}

// runRefreshLoop drives one data type's scheduled refreshes.
func (s *Service) runRefreshLoop(ctx context.Context, entry *refreshEntry) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	logger := s.config.Logger.With(slog.String("data_type", string(entry.dataType)))
	s.status.SetNextScheduled(entry.dataType, time.Now().Add(s.config.Interval))

	if s.config.RunInitial {
		s.executeRefresh(ctx, entry.dataType, logger)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("refresh loop stopped")
			return

		case <-ticker.C:
			s.executeRefresh(ctx, entry.dataType, logger)
			s.status.SetNextScheduled(entry.dataType, time.Now().Add(s.config.Interval))

		case <-entry.trigger:
			logger.Info("catalog refresh triggered")
			s.executeRefresh(ctx, entry.dataType, logger)
		}
	}
}

// executeRefresh retries a failed listing with backoff. Only the
// background loops retry; synchronous forced refreshes report their
// first failure to the caller instead.
func (s *Service) executeRefresh(ctx context.Context, dataType types.DataType, logger *slog.Logger) {
	backoff := resilience.NewBackoff(s.config.Retry)

	for {
		start := time.Now()
		set, err := s.refreshOnce(ctx, dataType, true)
		if err == nil {
			logger.Info("catalog refresh completed",
				slog.Int("records", len(set.Operators)),
				slog.Duration("duration", time.Since(start)),
			)
			return
		}

		logger.Warn("catalog refresh failed",
			slog.String("error", err.Error()),
			slog.Int("attempt", backoff.Attempts()+1),
		)

		delay, ok := backoff.NextDelay()
		if !ok {
			logger.Error("catalog refresh failed after max retries",
				slog.Int("attempts", backoff.Attempts()),
			)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
			logger.Debug("retrying catalog refresh", slog.Duration("delay", delay))
		}
	}
}
