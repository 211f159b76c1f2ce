// ABOUTME: HTTP handlers for the fleetlens API endpoints
// ABOUTME: Catalog listings, feed proxying, city aggregation, and health

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetlens-io/fleetlens/internal/catalog"
	"github.com/fleetlens-io/fleetlens/internal/fetch"
	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/resilience"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

// OperatorSource serves catalog snapshots and refresh status.
type OperatorSource interface {
	ListOperators(ctx context.Context, dataType types.DataType, force bool) (*catalog.OperatorSet, error)
	Statuses() map[types.DataType]*catalog.RefreshStatus
}

// Aggregator runs the feed pipeline over catalog records.
type Aggregator interface {
	Run(ctx context.Context, operators []types.OperatorRecord) []types.OperatorResult
}

// FeedProxy performs feed fetches for the proxy endpoints.
type FeedProxy interface {
	FetchMany(ctx context.Context, items []fetch.Item) []fetch.Result
	FetchSingle(ctx context.Context, url string) ([]byte, error)
}

// Pinger checks a backing store connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	catalog  OperatorSource
	pipeline Aggregator
	proxy    FeedProxy
	cache    *catalog.Cache
	metrics  *observability.FetchMetrics
	audit    *observability.AuditLogger
	breaker  *resilience.CircuitBreaker
	redis    Pinger
	nats     ConnectionChecker
	mapToken string
	logger   *slog.Logger
}

// HandlerConfig holds configuration for API handlers. Every dependency
// is optional; endpoints whose dependency is missing answer 503.
type HandlerConfig struct {
	Catalog  OperatorSource
	Pipeline Aggregator
	Proxy    FeedProxy
	Cache    *catalog.Cache
	Metrics  *observability.FetchMetrics
	Audit    *observability.AuditLogger
	Breaker  *resilience.CircuitBreaker
	Redis    Pinger
	NATS     ConnectionChecker
	MapToken string
	Logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		catalog:  cfg.Catalog,
		pipeline: cfg.Pipeline,
		proxy:    cfg.Proxy,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		audit:    cfg.Audit,
		breaker:  cfg.Breaker,
		redis:    cfg.Redis,
		nats:     cfg.NATS,
		mapToken: cfg.MapToken,
		logger:   cfg.Logger,
	}
}

// RegisterRoutes registers all API routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/operators", h.HandleListOperators)
	r.Post("/api/v1/proxy/batch", h.HandleProxyBatch)
	r.Get("/api/v1/proxy/single", h.HandleProxySingle)
	r.Get("/api/v1/cities/{city}/operators", h.HandleCityOperators)
	r.Get("/api/v1/config/map-token", h.HandleMapToken)
	r.Get("/api/v1/health", h.HandleHealth)
	r.Get("/api/v1/status", h.HandleStatus)
}

// operatorsResponse is the catalog listing payload.
type operatorsResponse struct {
	Systems     []types.OperatorRecord `json:"systems"`
	TotalCount  int                    `json:"total_count"`
	LastUpdated time.Time              `json:"last_updated"`
	CacheHit    bool                   `json:"cache_hit"`
}

// HandleListOperators handles catalog listing requests.
// GET /api/v1/operators?type=gbfs&force=false&limit=N
func (h *Handler) HandleListOperators(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not available")
		return
	}

	typeStr := r.URL.Query().Get("type")
	if typeStr == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	dataType, err := types.ParseDataType(typeStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	force := parseBoolParam(r, "force")

	limit := -1
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	set, err := h.catalog.ListOperators(r.Context(), dataType, force)
	if err != nil {
		writeError(w, catalogErrorStatus(err), err.Error())
		return
	}

	systems := set.Operators
	if systems == nil {
		systems = []types.OperatorRecord{}
	}
	total := len(systems)
	if limit >= 0 && limit < total {
		systems = systems[:limit]
	}

	writeJSON(w, http.StatusOK, operatorsResponse{
		Systems:     systems,
		TotalCount:  total,
		LastUpdated: set.FetchedAt,
		CacheHit:    set.CacheHit,
	})
}

// batchItem names one URL in a proxy batch request.
type batchItem struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// batchItemResult reports one proxied fetch. Data and Error render as
// explicit nulls so clients can branch on either.
type batchItemResult struct {
	Name  string          `json:"name"`
	Data  json.RawMessage `json:"data"`
	Error *string         `json:"error"`
}

// HandleProxyBatch handles concurrent feed proxying.
// POST /api/v1/proxy/batch with body {items: [{name, url}]}
// Per-item failures never abort the batch.
func (h *Handler) HandleProxyBatch(w http.ResponseWriter, r *http.Request) {
	if h.proxy == nil {
		writeError(w, http.StatusServiceUnavailable, "feed proxy is not available")
		return
	}

	var raw struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(raw.Items) == 0 || string(raw.Items) == "null" {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	var items []batchItem
	if err := json.Unmarshal(raw.Items, &items); err != nil {
		writeError(w, http.StatusBadRequest, "items must be a list")
		return
	}

	fetchItems := make([]fetch.Item, len(items))
	for i, item := range items {
		fetchItems[i] = fetch.Item{Name: item.Name, URL: item.URL}
	}

	results := h.proxy.FetchMany(r.Context(), fetchItems)

	resp := make([]batchItemResult, 0, len(results))
	for _, res := range results {
		entry := batchItemResult{Name: res.Name, Data: res.Data}
		if res.Err != nil {
			msg := res.Err.Error()
			entry.Error = &msg
		}
		resp = append(resp, entry)
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleProxySingle handles single-feed passthrough.
// GET /api/v1/proxy/single?url=...
func (h *Handler) HandleProxySingle(w http.ResponseWriter, r *http.Request) {
	if h.proxy == nil {
		writeError(w, http.StatusServiceUnavailable, "feed proxy is not available")
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	data, err := h.proxy.FetchSingle(r.Context(), url)
	if err != nil {
		switch {
		case observability.IsTimeout(err):
			writeError(w, http.StatusRequestTimeout, err.Error())
		default:
			// Upstream HTTP failures pass their status through.
			if status, ok := observability.UpstreamStatusCode(err); ok {
				writeError(w, status, err.Error())
				return
			}
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// cityOperatorsResponse is the per-city aggregation payload.
type cityOperatorsResponse struct {
	City        string                 `json:"city"`
	Operators   []types.OperatorResult `json:"operators"`
	TotalCount  int                    `json:"total_count"`
	LastUpdated time.Time              `json:"last_updated"`
	CacheHit    bool                   `json:"cache_hit"`
}

// HandleCityOperators runs the full aggregation pipeline over the
// catalog entries matching one city.
// GET /api/v1/cities/{city}/operators?type=gbfs&force=false
func (h *Handler) HandleCityOperators(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not available")
		return
	}
	if h.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregation is not available")
		return
	}

	city := chi.URLParam(r, "city")
	if city == "" {
		writeError(w, http.StatusBadRequest, "city is required")
		return
	}

	typeStr := r.URL.Query().Get("type")
	if typeStr == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	dataType, err := types.ParseDataType(typeStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	force := parseBoolParam(r, "force")

	set, err := h.catalog.ListOperators(r.Context(), dataType, force)
	if err != nil {
		writeError(w, catalogErrorStatus(err), err.Error())
		return
	}

	var matched []types.OperatorRecord
	for _, rec := range set.Operators {
		if strings.EqualFold(rec.Location, city) {
			matched = append(matched, rec)
		}
	}

	results := h.pipeline.Run(r.Context(), matched)
	if results == nil {
		results = []types.OperatorResult{}
	}

	writeJSON(w, http.StatusOK, cityOperatorsResponse{
		City:        city,
		Operators:   results,
		TotalCount:  len(matched),
		LastUpdated: set.FetchedAt,
		CacheHit:    set.CacheHit,
	})
}

// HandleMapToken hands the map tile token to the frontend.
// GET /api/v1/config/map-token
func (h *Handler) HandleMapToken(w http.ResponseWriter, r *http.Request) {
	if h.mapToken == "" {
		if h.audit != nil {
			h.audit.LogMapTokenDenied(r.Context(), r.RemoteAddr, "token not configured")
		}
		writeError(w, http.StatusInternalServerError, "map token is not configured")
		return
	}

	if h.audit != nil {
		h.audit.LogMapTokenAccess(r.Context(), r.RemoteAddr)
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": h.mapToken})
}

// HandleHealth handles health check requests.
// GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]any)

	// Check the catalog cache.
	if h.cache != nil {
		count, err := h.cache.Count(r.Context())
		if err != nil {
			status = "degraded"
			checks["catalog_cache"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["catalog_cache"] = fmt.Sprintf("ok (snapshots: %d)", count)
		}
	}

	// Check the refresh service per data type. Pending loops have not
	// run yet and are not a degradation.
	if h.catalog != nil {
		statuses := h.catalog.Statuses()
		if len(statuses) > 0 {
			for _, st := range statuses {
				if st.State == catalog.StateFailed {
					status = "degraded"
				}
			}
			checks["catalog_refresh"] = statuses
		}
	}

	// Check Redis if enabled.
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			status = "degraded"
			checks["redis"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["redis"] = "ok"
		}
	}

	// Check NATS if enabled.
	if h.nats != nil {
		if h.nats.IsConnected() {
			checks["nats"] = "ok"
		} else {
			status = "degraded"
			checks["nats"] = "disconnected"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// statusResponse is the operational status payload.
type statusResponse struct {
	FetchMetrics   *observability.MetricsSnapshot            `json:"fetch_metrics,omitempty"`
	Catalog        map[types.DataType]*catalog.RefreshStatus `json:"catalog,omitempty"`
	CircuitBreaker *resilience.Statistics                    `json:"circuit_breaker,omitempty"`
	Timestamp      time.Time                                 `json:"timestamp"`
}

// HandleStatus reports fetch metrics, refresh statuses, and breaker state.
// GET /api/v1/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Timestamp: time.Now().UTC()}

	if h.metrics != nil {
		resp.FetchMetrics = h.metrics.Snapshot()
	}
	if h.catalog != nil {
		resp.Catalog = h.catalog.Statuses()
	}
	if h.breaker != nil {
		stats := h.breaker.Statistics()
		resp.CircuitBreaker = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// catalogErrorStatus maps catalog failures onto HTTP statuses.
func catalogErrorStatus(err error) int {
	switch {
	case observability.IsAuthError(err):
		return http.StatusUnauthorized
	case observability.IsUpstreamError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseBoolParam reads a boolean query parameter, defaulting to false.
func parseBoolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
