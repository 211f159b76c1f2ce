// ABOUTME: Single-URL HTTP fetcher for JSON feed documents
// ABOUTME: Time-boxes each request and maps failures onto the fetch error taxonomy

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/observability"
)

// Default fetcher configuration values.
const (
	defaultTimeout      = 8 * time.Second
	defaultMaxBodyBytes = 10 << 20
	defaultUserAgent    = "fleetlens/1.0 (+https://github.com/fleetlens-io/fleetlens)"
)

// FetcherConfig holds configuration for the feed fetcher.
type FetcherConfig struct {
	// Timeout applies per request via context, so one hanging feed is
	// cut off without touching its siblings.
	Timeout time.Duration

	// UserAgent for outbound requests.
	UserAgent string

	// MaxBodyBytes limits a single response body read.
	MaxBodyBytes int64

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client is created.
	HTTPClient *http.Client
}

// DefaultFetcherConfig returns sensible defaults for GBFS documents.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:      defaultTimeout,
		UserAgent:    defaultUserAgent,
		MaxBodyBytes: defaultMaxBodyBytes,
	}
}

// Fetcher retrieves JSON documents over HTTP.
type Fetcher struct {
	client *http.Client
	config FetcherConfig
}

// NewFetcher creates a new fetcher.
// If config is nil, default configuration is used.
func NewFetcher(config *FetcherConfig) *Fetcher {
	cfg := DefaultFetcherConfig()
	if config != nil {
		cfg = *config
		if cfg.Timeout <= 0 {
			cfg.Timeout = defaultTimeout
		}
		if cfg.UserAgent == "" {
			cfg.UserAgent = defaultUserAgent
		}
		if cfg.MaxBodyBytes <= 0 {
			cfg.MaxBodyBytes = defaultMaxBodyBytes
		}
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Fetcher{
		client: client,
		config: cfg,
	}
}

// Timeout returns the per-request time box.
func (f *Fetcher) Timeout() time.Duration {
	return f.config.Timeout
}

// Fetch retrieves url and returns the validated JSON body. Failures
// come back as taxonomy errors: TimeoutError past the deadline,
// UpstreamError (status + body excerpt) on non-2xx, ContentTypeError
// on a non-JSON media type, ParseError on an invalid body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, observability.NewTimeoutError("fetch", err)
		}
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, observability.NewTimeoutError("fetch", err)
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	// Status first: error pages usually carry text/html, and the status
	// plus excerpt is the useful evidence.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, observability.NewUpstreamError("fetch", resp.StatusCode, observability.BodyExcerpt(body))
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, merr := mime.ParseMediaType(contentType)
	if merr != nil || !strings.Contains(mediaType, "json") {
		return nil, observability.NewContentTypeError("fetch", contentType)
	}

	if !json.Valid(body) {
		return nil, observability.NewParseError("fetch", errors.New("response body is not valid JSON"))
	}

	return body, nil
}
