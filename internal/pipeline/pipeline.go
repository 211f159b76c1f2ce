// ABOUTME: Six-phase aggregation pipeline turning catalog records into results
// ABOUTME: Barriered fan-out per phase with per-operator failure isolation

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetlens-io/fleetlens/internal/fetch"
	"github.com/fleetlens-io/fleetlens/internal/gbfs"
	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// BatchFetcher fans a batch of named URLs out and back in.
type BatchFetcher interface {
	FetchMany(ctx context.Context, items []fetch.Item) []fetch.Result
}

// Config holds configuration for the aggregation pipeline.
type Config struct {
	// Fetcher performs the per-phase batch fetches. Required.
	Fetcher BatchFetcher

	// Logger for run diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

// Pipeline runs the aggregation phases over a set of operators. Runs
// are request-scoped and share no state beyond the process-wide
// caches; a caller that started a newer run discards the older result
// set on arrival.
type Pipeline struct {
	fetcher BatchFetcher
	logger  *slog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("pipeline fetcher is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		fetcher: cfg.Fetcher,
		logger:  logger,
	}, nil
}

// operatorRun is the per-operator state threaded through the phases.
type operatorRun struct {
	record       types.OperatorRecord
	resolvedName string
	feeds        types.FeedMap
	verdict      types.ClassificationVerdict
	formFactors  []string
	websiteURL   string
	email        string
	statusFeed   types.FeedName
	statusURL    string
	status       *types.NormalizedStatus
	discoveryErr string
	statusErr    string
}

// live reports whether the operator is still part of the run.
func (o *operatorRun) live() bool {
	return o.discoveryErr == ""
}

// queueStatusFeed picks the status feed the current verdict implies.
func (o *operatorRun) queueStatusFeed() {
	if name, url, ok := gbfs.StatusFeed(o.feeds, o.verdict); ok {
		o.statusFeed, o.statusURL = name, url
		return
	}
	o.statusFeed, o.statusURL = "", ""
}

// Run executes one aggregation over the given operators and returns
// one result per operator in input order. Each phase is a full
// fan-out/fan-in barrier; a failure in any phase stays confined to the
// operator that caused it.
func (p *Pipeline) Run(ctx context.Context, operators []types.OperatorRecord) []types.OperatorResult {
	if len(operators) == 0 {
		return nil
	}

	runID := uuid.New().String()
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.operators", len(operators)),
		))
	defer span.End()

	logger := p.logger.With(slog.String("run_id", runID))
	logger.Info("aggregation run started", slog.Int("operators", len(operators)))

	states := make([]*operatorRun, len(operators))
	for i, record := range operators {
		states[i] = &operatorRun{
			record:       record,
			resolvedName: record.Name,
			verdict:      types.ClassificationVerdict{Type: types.SystemTypeUnknown},
		}
	}

	p.runDiscovery(ctx, states)
	p.classifyProvisional(ctx, states)
	p.fetchOptionalFeeds(ctx, states, logger)
	p.reclassify(ctx, states)
	p.fetchStatus(ctx, states)
	results := p.assemble(ctx, states)

	logger.Info("aggregation run completed",
		slog.Int("operators", len(results)),
		slog.Int("failed", countFailed(results)),
		slog.Duration("duration", time.Since(start)),
	)
	return results
}

// runDiscovery fetches and parses every operator's discovery document.
// A fetch error, a parse error, or an empty feed map is terminal for
// that operator alone.
func (p *Pipeline) runDiscovery(ctx context.Context, states []*operatorRun) {
	ctx, span := observability.StartSpan(ctx, "pipeline.discovery",
		trace.WithAttributes(attribute.Int("discovery.operators", len(states))))
	defer span.End()

	items := make([]fetch.Item, len(states))
	for i, state := range states {
		items[i] = fetch.Item{Name: string(types.FeedDiscovery), URL: state.record.DiscoveryURL}
	}

	results := p.fetcher.FetchMany(ctx, items)
	for i, res := range results {
		state := states[i]
		if res.Err != nil {
			state.discoveryErr = res.Err.Error()
			continue
		}

		feeds, name, err := gbfs.ParseDiscovery(res.Data, state.record.Name)
		if err != nil {
			state.discoveryErr = err.Error()
			continue
		}
		if len(feeds) == 0 {
			state.discoveryErr = "discovery document lists no usable feeds"
			continue
		}

		state.feeds = feeds
		state.resolvedName = name
	}

	span.SetAttributes(attribute.Int("discovery.failed", countDead(states)))
}

// classifyProvisional assigns each live operator a verdict from feed
// presence alone and queues the status feed that verdict implies.
func (p *Pipeline) classifyProvisional(ctx context.Context, states []*operatorRun) {
	_, span := observability.StartSpan(ctx, "pipeline.classify")
	defer span.End()

	for _, state := range states {
		if !state.live() {
			continue
		}
		state.verdict = gbfs.Classify(state.feeds, nil)
		state.queueStatusFeed()
	}
}

// optionalTarget points one batch item back at its operator.
type optionalTarget struct {
	state *operatorRun
	feed  types.FeedName
}

// fetchOptionalFeeds retrieves system_information and vehicle_types for
// live operators that publish them. Failures here never remove an
// operator from the run; it just proceeds without the extra evidence.
func (p *Pipeline) fetchOptionalFeeds(ctx context.Context, states []*operatorRun, logger *slog.Logger) {
	ctx, span := observability.StartSpan(ctx, "pipeline.optional_feeds")
	defer span.End()

	var (
		items   []fetch.Item
		targets []optionalTarget
	)
	for _, state := range states {
		if !state.live() {
			continue
		}
		for _, feed := range []types.FeedName{types.FeedSystemInformation, types.FeedVehicleTypes} {
			if url, ok := state.feeds.URL(feed); ok {
				items = append(items, fetch.Item{Name: string(feed), URL: url})
				targets = append(targets, optionalTarget{state: state, feed: feed})
			}
		}
	}

	span.SetAttributes(attribute.Int("optional.queued", len(items)))
	if len(items) == 0 {
		return
	}

	results := p.fetcher.FetchMany(ctx, items)
	for i, res := range results {
		target := targets[i]
		if res.Err != nil {
			logger.Debug("optional feed unavailable",
				slog.String("system_id", target.state.record.SystemID),
				slog.String("feed", string(target.feed)),
				slog.String("error", res.Err.Error()),
			)
			continue
		}

		switch target.feed {
		case types.FeedSystemInformation:
			info, err := gbfs.ParseSystemInformation(res.Data)
			if err != nil {
				logger.Debug("unreadable system_information",
					slog.String("system_id", target.state.record.SystemID),
					slog.String("error", err.Error()),
				)
				continue
			}
			target.state.websiteURL = info.URL
			target.state.email = info.Email

		case types.FeedVehicleTypes:
			factors, err := gbfs.ParseVehicleTypes(res.Data)
			if err != nil {
				logger.Debug("unreadable vehicle_types",
					slog.String("system_id", target.state.record.SystemID),
					slog.String("error", err.Error()),
				)
				continue
			}
			target.state.formFactors = factors
		}
	}
}

// reclassify re-runs classification with vehicle-type evidence. A
// changed verdict swaps the queued status feed. The verdict never
// regresses away from free_floating.
func (p *Pipeline) reclassify(ctx context.Context, states []*operatorRun) {
	_, span := observability.StartSpan(ctx, "pipeline.reclassify")
	defer span.End()

	for _, state := range states {
		if !state.live() {
			continue
		}

		final := gbfs.Classify(state.feeds, state.formFactors)
		if final.Type == state.verdict.Type {
			continue
		}
		if !gbfs.Supersedes(state.verdict, final) {
			continue
		}

		state.verdict = final
		state.queueStatusFeed()
	}
}

// fetchStatus retrieves the queued status feeds and normalizes the
// counts. Errors land in the operator's StatusError with nil counts;
// operators whose verdict implies no status feed are skipped silently.
func (p *Pipeline) fetchStatus(ctx context.Context, states []*operatorRun) {
	ctx, span := observability.StartSpan(ctx, "pipeline.status")
	defer span.End()

	var (
		items   []fetch.Item
		targets []*operatorRun
	)
	for _, state := range states {
		if !state.live() || state.statusURL == "" {
			continue
		}
		items = append(items, fetch.Item{Name: string(state.statusFeed), URL: state.statusURL})
		targets = append(targets, state)
	}

	span.SetAttributes(attribute.Int("status.queued", len(items)))
	if len(items) == 0 {
		return
	}

	results := p.fetcher.FetchMany(ctx, items)
	for i, res := range results {
		state := targets[i]
		if res.Err != nil {
			state.statusErr = res.Err.Error()
			continue
		}

		status, err := gbfs.NormalizeStatus(res.Data, state.verdict)
		if err != nil {
			state.statusErr = err.Error()
			continue
		}
		state.status = status
	}
}

// assemble merges the phase outcomes into results, preserving catalog
// encounter order. Sorting is the consumer's concern.
func (p *Pipeline) assemble(ctx context.Context, states []*operatorRun) []types.OperatorResult {
	_, span := observability.StartSpan(ctx, "pipeline.assemble")
	defer span.End()

	results := make([]types.OperatorResult, len(states))
	for i, state := range states {
		results[i] = types.OperatorResult{
			Operator:       state.record,
			ResolvedName:   state.resolvedName,
			Verdict:        state.verdict,
			Status:         state.status,
			WebsiteURL:     state.websiteURL,
			Email:          state.email,
			DiscoveryError: state.discoveryErr,
			StatusError:    state.statusErr,
		}
	}
	return results
}

func countDead(states []*operatorRun) int {
	n := 0
	for _, state := range states {
		if !state.live() {
			n++
		}
	}
	return n
}

func countFailed(results []types.OperatorResult) int {
	n := 0
	for i := range results {
		if results[i].Failed() {
			n++
		}
	}
	return n
}
