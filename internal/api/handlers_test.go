// ABOUTME: Tests for API handlers covering listings, proxying, and health
// ABOUTME: Validates status mapping, parameter handling, and error cases

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetlens-io/fleetlens/internal/catalog"
	"github.com/fleetlens-io/fleetlens/internal/fetch"
	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/resilience"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

type stubCatalog struct {
	set      *catalog.OperatorSet
	err      error
	statuses map[types.DataType]*catalog.RefreshStatus

	lastType  types.DataType
	lastForce bool
}

func (s *stubCatalog) ListOperators(_ context.Context, dataType types.DataType, force bool) (*catalog.OperatorSet, error) {
	s.lastType = dataType
	s.lastForce = force
	if s.err != nil {
		return nil, s.err
	}
	return s.set, nil
}

func (s *stubCatalog) Statuses() map[types.DataType]*catalog.RefreshStatus {
	return s.statuses
}

type stubPipeline struct {
	received []types.OperatorRecord
}

func (s *stubPipeline) Run(_ context.Context, operators []types.OperatorRecord) []types.OperatorResult {
	s.received = operators
	if len(operators) == 0 {
		return nil
	}
	results := make([]types.OperatorResult, len(operators))
	for i, op := range operators {
		results[i] = types.OperatorResult{
			Operator:     op,
			ResolvedName: op.Name,
			Verdict:      types.ClassificationVerdict{Type: types.SystemTypeStationBased},
		}
	}
	return results
}

type stubProxy struct {
	batch  []fetch.Result
	single []byte
	err    error
}

func (s *stubProxy) FetchMany(_ context.Context, items []fetch.Item) []fetch.Result {
	if s.batch != nil {
		return s.batch
	}
	results := make([]fetch.Result, len(items))
	for i, item := range items {
		results[i] = fetch.Result{Name: item.Name, Data: json.RawMessage(`{}`)}
	}
	return results
}

func (s *stubProxy) FetchSingle(_ context.Context, _ string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.single, nil
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(_ context.Context) error { return s.err }

type stubConn struct {
	connected bool
}

func (s *stubConn) IsConnected() bool { return s.connected }

func sampleSet() *catalog.OperatorSet {
	return &catalog.OperatorSet{
		Operators: []types.OperatorRecord{
			{SystemID: "oslo-bysykkel", Name: "Oslo Bysykkel", Location: "Oslo", DiscoveryURL: "https://oslo.example/gbfs.json"},
			{SystemID: "oslo-ryde", Name: "Ryde Oslo", Location: "oslo", DiscoveryURL: "https://ryde.example/gbfs.json"},
			{SystemID: "bergen-bysykkel", Name: "Bergen Bysykkel", Location: "Bergen", DiscoveryURL: "https://bergen.example/gbfs.json"},
		},
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CacheHit:  true,
	}
}

func newTestRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandler_HandleListOperators(t *testing.T) {
	t.Parallel()

	cat := &stubCatalog{set: sampleSet()}
	handler := NewHandler(HandlerConfig{Catalog: cat})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators?type=gbfs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Systems     []types.OperatorRecord `json:"systems"`
		TotalCount  int                    `json:"total_count"`
		LastUpdated time.Time              `json:"last_updated"`
		CacheHit    bool                   `json:"cache_hit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}

	if len(resp.Systems) != 3 {
		t.Errorf("len(Systems) = %d, want 3", len(resp.Systems))
	}
	if resp.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3", resp.TotalCount)
	}
	if !resp.CacheHit {
		t.Error("CacheHit = false, want true")
	}
	if cat.lastType != types.DataTypeGBFS {
		t.Errorf("requested data type = %v, want gbfs", cat.lastType)
	}
	if cat.lastForce {
		t.Error("force = true, want false")
	}
}

func TestHandler_HandleListOperators_LimitTruncates(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{Catalog: &stubCatalog{set: sampleSet()}})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators?type=gbfs&limit=2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Systems    []types.OperatorRecord `json:"systems"`
		TotalCount int                    `json:"total_count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}

	if len(resp.Systems) != 2 {
		t.Errorf("len(Systems) = %d, want 2", len(resp.Systems))
	}
	if resp.TotalCount != 3 {
		t.Errorf("TotalCount = %d, want 3 before truncation", resp.TotalCount)
	}
}

func TestHandler_HandleListOperators_ForcePassthrough(t *testing.T) {
	t.Parallel()

	cat := &stubCatalog{set: sampleSet()}
	handler := NewHandler(HandlerConfig{Catalog: cat})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operators?type=gbfs&force=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !cat.lastForce {
		t.Error("force = false, want true")
	}
}

func TestHandler_HandleListOperators_BadRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
	}{
		{name: "missing type", target: "/api/v1/operators"},
		{name: "unknown type", target: "/api/v1/operators?type=pigeon"},
		{name: "negative limit", target: "/api/v1/operators?type=gbfs&limit=-1"},
		{name: "non-integer limit", target: "/api/v1/operators?type=gbfs&limit=abc"},
	}

	handler := NewHandler(HandlerConfig{Catalog: &stubCatalog{set: sampleSet()}})
	router := newTestRouter(handler)

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandler_HandleListOperators_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "auth failure maps to 401",
			err:        observability.NewAuthError("catalog_token", errors.New("refresh rejected")),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "upstream failure maps to 502",
			err:        observability.NewUpstreamError("catalog_page", http.StatusServiceUnavailable, "busy"),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unclassified failure maps to 500",
			err:        errors.New("catalog store corrupted"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewHandler(HandlerConfig{Catalog: &stubCatalog{err: tt.err}})
			router := newTestRouter(handler)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/operators?type=gbfs", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Decoding response: %v", err)
			}
			if resp["error"] == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestHandler_HandleProxyBatch(t *testing.T) {
	t.Parallel()

	proxy := &stubProxy{
		batch: []fetch.Result{
			{Name: "good", Data: json.RawMessage(`{"bikes": []}`)},
			{Name: "bad", Err: observability.NewUpstreamError("fetch", http.StatusNotFound, "not found")},
		},
	}
	handler := NewHandler(HandlerConfig{Proxy: proxy})
	router := newTestRouter(handler)

	body := `{"items": [{"name": "good", "url": "https://a.example/f.json"}, {"name": "bad", "url": "https://b.example/f.json"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/proxy/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	raw := rec.Body.String()
	if !strings.Contains(raw, `"error":null`) {
		t.Errorf("successful item should render error as null, got %s", raw)
	}
	if !strings.Contains(raw, `"data":null`) {
		t.Errorf("failed item should render data as null, got %s", raw)
	}

	var resp []struct {
		Name  string          `json:"name"`
		Data  json.RawMessage `json:"data"`
		Error *string         `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}

	if len(resp) != 2 {
		t.Fatalf("len(resp) = %d, want 2", len(resp))
	}
	if resp[0].Error != nil {
		t.Errorf("resp[0].Error = %v, want nil", *resp[0].Error)
	}
	if resp[1].Error == nil || !strings.Contains(*resp[1].Error, "UPSTREAM_STATUS") {
		t.Errorf("resp[1].Error = %v, want upstream error", resp[1].Error)
	}
}

func TestHandler_HandleProxyBatch_BadRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not json"},
		{name: "items absent", body: `{}`},
		{name: "items null", body: `{"items": null}`},
		{name: "items not a list", body: `{"items": "nope"}`},
	}

	handler := NewHandler(HandlerConfig{Proxy: &stubProxy{}})
	router := newTestRouter(handler)

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/proxy/batch", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandler_HandleProxySingle(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{Proxy: &stubProxy{single: []byte(`{"ttl": 60}`)}})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/proxy/single?url=https://a.example/f.json", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if rec.Body.String() != `{"ttl": 60}` {
		t.Errorf("Body = %q, want raw passthrough", rec.Body.String())
	}
}

func TestHandler_HandleProxySingle_MissingURL(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{Proxy: &stubProxy{}})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/proxy/single", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandler_HandleProxySingle_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "timeout maps to 408",
			err:        observability.NewTimeoutError("fetch", context.DeadlineExceeded),
			wantStatus: http.StatusRequestTimeout,
		},
		{
			name:       "upstream 404 passes through",
			err:        observability.NewUpstreamError("fetch", http.StatusNotFound, "not found"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "upstream 500 passes through",
			err:        observability.NewUpstreamError("fetch", http.StatusInternalServerError, "boom"),
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "content type maps to 502",
			err:        observability.NewContentTypeError("fetch", "text/html"),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "network failure maps to 502",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := NewHandler(HandlerConfig{Proxy: &stubProxy{err: tt.err}})
			router := newTestRouter(handler)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/proxy/single?url=https://a.example/f.json", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandler_HandleCityOperators(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	handler := NewHandler(HandlerConfig{
		Catalog:  &stubCatalog{set: sampleSet()},
		Pipeline: pipe,
	})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cities/Oslo/operators?type=gbfs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Location matching is case-insensitive, so both Oslo records run.
	if len(pipe.received) != 2 {
		t.Fatalf("pipeline received %d operators, want 2", len(pipe.received))
	}
	for _, op := range pipe.received {
		if !strings.EqualFold(op.Location, "Oslo") {
			t.Errorf("pipeline received operator in %q, want Oslo", op.Location)
		}
	}

	var resp struct {
		City       string                 `json:"city"`
		Operators  []types.OperatorResult `json:"operators"`
		TotalCount int                    `json:"total_count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}

	if resp.City != "Oslo" {
		t.Errorf("City = %q, want Oslo", resp.City)
	}
	if len(resp.Operators) != 2 {
		t.Errorf("len(Operators) = %d, want 2", len(resp.Operators))
	}
	if resp.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", resp.TotalCount)
	}
}

func TestHandler_HandleCityOperators_NoMatches(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{
		Catalog:  &stubCatalog{set: sampleSet()},
		Pipeline: &stubPipeline{},
	})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cities/Atlantis/operators?type=gbfs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"operators":[]`) {
		t.Errorf("empty match should render an empty list, got %s", rec.Body.String())
	}
}

func TestHandler_HandleCityOperators_MissingType(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{
		Catalog:  &stubCatalog{set: sampleSet()},
		Pipeline: &stubPipeline{},
	})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cities/Oslo/operators", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandler_HandleMapToken(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{MapToken: "pk.test-token"})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/map-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}
	if resp["token"] != "pk.test-token" {
		t.Errorf("token = %q, want pk.test-token", resp["token"])
	}
}

func TestHandler_HandleMapToken_Unconfigured(t *testing.T) {
	t.Parallel()

	handler := NewHandler(HandlerConfig{})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/map-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandler_HandleHealth(t *testing.T) {
	t.Parallel()

	statuses := map[types.DataType]*catalog.RefreshStatus{
		types.DataTypeGBFS: {
			DataType:    types.DataTypeGBFS,
			State:       catalog.StateIdle,
			SystemCount: 412,
		},
	}
	handler := NewHandler(HandlerConfig{
		Catalog: &stubCatalog{set: sampleSet(), statuses: statuses},
		Redis:   &stubPinger{},
		NATS:    &stubConn{connected: true},
	})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("Status = %q, want ok", resp.Status)
	}
	for _, key := range []string{"catalog_refresh", "redis", "nats"} {
		if _, found := resp.Checks[key]; !found {
			t.Errorf("checks missing %q: %v", key, resp.Checks)
		}
	}
}

func TestHandler_HandleHealth_Degraded(t *testing.T) {
	t.Parallel()

	statuses := map[types.DataType]*catalog.RefreshStatus{
		types.DataTypeGBFS: {
			DataType:  types.DataTypeGBFS,
			State:     catalog.StateFailed,
			LastError: "upstream unreachable",
		},
	}
	handler := NewHandler(HandlerConfig{
		Catalog: &stubCatalog{set: sampleSet(), statuses: statuses},
		Redis:   &stubPinger{err: errors.New("connection refused")},
		NATS:    &stubConn{connected: false},
	})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
}

func TestHandler_HandleStatus(t *testing.T) {
	t.Parallel()

	metrics := observability.NewFetchMetrics()
	metrics.RecordFetch("station_status", 120*time.Millisecond, true)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:   "catalog",
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	handler := NewHandler(HandlerConfig{
		Catalog: &stubCatalog{statuses: map[types.DataType]*catalog.RefreshStatus{
			types.DataTypeGBFS: {DataType: types.DataTypeGBFS, State: catalog.StateIdle},
		}},
		Metrics: metrics,
		Breaker: breaker,
	})
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}

	for _, key := range []string{"fetch_metrics", "catalog", "circuit_breaker", "timestamp"} {
		if _, found := resp[key]; !found {
			t.Errorf("response missing %q: %v", key, resp)
		}
	}
}
