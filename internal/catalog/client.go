// ABOUTME: Paginated client for the upstream systems catalog API
// ABOUTME: Bearer-authenticated offset/limit paging with per-entry enrichment

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/resilience"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

const (
	defaultPageSize    = 1000
	defaultPageTimeout = 15 * time.Second

	// maxPageBytes bounds a single page response. A full page of 1000
	// entries is well under 1 MB; the cap only guards against a
	// misbehaving upstream.
	maxPageBytes = 32 << 20
)

// TokenSource supplies a bearer token for upstream requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientConfig configures the catalog client.
type ClientConfig struct {
	// BaseURL of the catalog API, without a trailing slash. Required.
	BaseURL string

	// Tokens supplies bearer tokens. Required.
	Tokens TokenSource

	// PageSize is the offset/limit page size. Zero uses defaultPageSize.
	PageSize int

	// Timeout bounds each page request. Zero uses defaultPageTimeout.
	Timeout time.Duration

	// HTTPClient for requests. Nil uses a default client.
	HTTPClient *http.Client

	// Breaker guards upstream calls. Nil disables breaking.
	Breaker *resilience.CircuitBreaker

	// Locator enriches entries with an inferred city. Nil uses the
	// built-in table.
	Locator *Locator

	// Logger for structured logging. Nil uses slog.Default.
	Logger *slog.Logger
}

// Client lists operators from the upstream catalog.
type Client struct {
	baseURL    string
	tokens     TokenSource
	pageSize   int
	timeout    time.Duration
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	locator    *Locator
	logger     *slog.Logger
}

// NewClient creates a catalog client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPageTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Locator == nil {
		cfg.Locator = NewLocator(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		pageSize:   cfg.PageSize,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		breaker:    cfg.Breaker,
		locator:    cfg.Locator,
		logger:     cfg.Logger,
	}, nil
}

// ListSystems retrieves every operator of the given data type across
// all catalog pages, enriched with an inferred location. Any failed
// page aborts the whole listing; a partial catalog is never returned.
func (c *Client) ListSystems(ctx context.Context, dataType types.DataType) ([]types.OperatorRecord, error) {
	ctx, span := observability.StartSpan(ctx, "catalog.list_systems")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.data_type", string(dataType)))

	records := make([]types.OperatorRecord, 0, c.pageSize)
	offset := 0
	pages := 0

	for {
		page, err := c.fetchPage(ctx, dataType, offset)
		if err != nil {
			return nil, err
		}
		pages++

		for _, entry := range page {
			if entry.DataType != string(dataType) {
				continue
			}
			rec := c.toRecord(entry)
			if err := rec.Validate(); err != nil {
				c.logger.Debug("skipping malformed catalog entry",
					slog.String("id", entry.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			records = append(records, rec)
		}

		if len(page) < c.pageSize {
			break
		}
		offset += c.pageSize
	}

	span.SetAttributes(
		attribute.Int("catalog.pages", pages),
		attribute.Int("catalog.records", len(records)),
	)
	c.logger.Debug("catalog listing complete",
		slog.String("data_type", string(dataType)),
		slog.Int("pages", pages),
		slog.Int("records", len(records)),
	)

	return records, nil
}

// fetchPage routes one page request through the breaker when present.
func (c *Client) fetchPage(ctx context.Context, dataType types.DataType, offset int) ([]types.SystemEntry, error) {
	var page []types.SystemEntry
	call := func(ctx context.Context) error {
		p, err := c.requestPage(ctx, dataType, offset)
		if err != nil {
			return err
		}
		page = p
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(ctx, call); err != nil {
			return nil, err
		}
		return page, nil
	}
	if err := call(ctx); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) requestPage(ctx context.Context, dataType types.DataType, offset int) ([]types.SystemEntry, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("data_type", string(dataType))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(c.pageSize))
	endpoint := c.baseURL + "/systems?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	observability.AttachToRequest(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, observability.NewTimeoutError("catalog_page", err)
		}
		return nil, fmt.Errorf("requesting catalog page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, observability.NewTimeoutError("catalog_page", err)
		}
		return nil, fmt.Errorf("reading catalog page: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, observability.NewUpstreamError("catalog_page", resp.StatusCode, observability.BodyExcerpt(body))
	}

	var parsed types.SystemsPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, observability.NewParseError("catalog_page", err)
	}
	return parsed.Systems, nil
}

// toRecord converts a raw entry, preferring the catalog's own country
// code over the inferred one when both exist.
func (c *Client) toRecord(entry types.SystemEntry) types.OperatorRecord {
	city, country := c.locator.Infer(entry.Name, entry.ProducerURL)
	if entry.CountryCode != "" {
		country = entry.CountryCode
	}
	return types.OperatorRecord{
		SystemID:     entry.ID,
		Name:         entry.Name,
		Location:     city,
		CountryCode:  country,
		DiscoveryURL: entry.URL,
	}
}
