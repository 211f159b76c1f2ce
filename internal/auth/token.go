// ABOUTME: Upstream credential manager for the catalog API
// ABOUTME: Exchanges a long-lived refresh token for short-lived access tokens

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fleetlens-io/fleetlens/internal/observability"
)

// Token exchange behavior.
const (
	// expirySkew renews the token this long before its declared expiry so
	// in-flight catalog requests never carry a token about to lapse.
	expirySkew = 5 * time.Minute

	// defaultExpiresIn applies when the exchange response omits expires_in.
	defaultExpiresIn = 3600 // seconds

	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps the token response read.
	maxResponseBytes = 1 << 20
)

// Config holds configuration for the token manager.
type Config struct {
	// TokenURL is the refresh-exchange endpoint.
	TokenURL string

	// RefreshToken is the long-lived credential. Empty means no
	// credential is configured and Token fails with an auth error.
	RefreshToken string

	// Timeout for the exchange request.
	Timeout time.Duration

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client is created.
	HTTPClient *http.Client

	// Now is an optional clock override for expiry tests.
	Now func() time.Time

	// Audit is an optional audit logger for refresh events.
	Audit *observability.AuditLogger
}

// TokenManager caches an access token and refreshes it near expiry.
// The mutex makes refresh single-flight: concurrent callers block on
// the one in-progress exchange instead of issuing redundant ones.
type TokenManager struct {
	tokenURL     string
	refreshToken string
	httpClient   *http.Client
	now          func() time.Time
	audit        *observability.AuditLogger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenManager creates a token manager with the given configuration.
func NewTokenManager(cfg Config) *TokenManager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TokenManager{
		tokenURL:     cfg.TokenURL,
		refreshToken: cfg.RefreshToken,
		httpClient:   httpClient,
		now:          now,
		audit:        cfg.Audit,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid access token, refreshing when the cached one is
// absent or inside the expiry skew window.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Add(expirySkew).Before(m.expiry) {
		return m.token, nil
	}
	return m.refreshLocked(ctx)
}

// Invalidate drops the cached token, forcing a refresh on next use.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
}

func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	if m.refreshToken == "" {
		return "", observability.NewAuthError("token_refresh", errors.New("no refresh credential configured"))
	}

	token, err := m.exchange(ctx)
	if m.audit != nil {
		if err != nil {
			m.audit.LogTokenRefresh(ctx, false, err.Error())
		} else {
			m.audit.LogTokenRefresh(ctx, true, "")
		}
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// exchange posts the refresh credential and caches the returned token.
// Callers must hold the mutex.
func (m *TokenManager) exchange(ctx context.Context) (string, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: m.refreshToken})
	if err != nil {
		return "", observability.NewAuthError("token_refresh", fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", observability.NewAuthError("token_refresh", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", observability.NewAuthError("token_refresh", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", observability.NewAuthError("token_refresh", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", observability.NewUpstreamError("token_refresh", resp.StatusCode, observability.BodyExcerpt(respBody))
	}

	var tr refreshResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", observability.NewAuthError("token_refresh", fmt.Errorf("decode response: %w", err))
	}
	if tr.AccessToken == "" {
		return "", observability.NewAuthError("token_refresh", errors.New("response missing access_token"))
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	m.token = tr.AccessToken
	m.expiry = m.now().Add(time.Duration(expiresIn) * time.Second)
	return m.token, nil
}
