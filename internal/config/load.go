// ABOUTME: Config loading: defaults, YAML file, .env overlay, env secrets, validation
// ABOUTME: A missing default config file is fine; a missing explicit one is an error

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables recognized by Load. Secrets are env-only so
// they never land in config files or version control.
const (
	EnvRefreshToken  = "FLEETLENS_REFRESH_TOKEN"
	EnvMapToken      = "FLEETLENS_MAP_TOKEN"
	EnvRedisPassword = "FLEETLENS_REDIS_PASSWORD"
	EnvUpstreamBase  = "FLEETLENS_UPSTREAM_BASE_URL"
	EnvTokenURL      = "FLEETLENS_TOKEN_URL"
	EnvHTTPAddr      = "FLEETLENS_HTTP_ADDR"
	EnvRedisAddr     = "FLEETLENS_REDIS_ADDR"
	EnvNATSURL       = "FLEETLENS_NATS_URL"
	EnvLogLevel      = "FLEETLENS_LOG_LEVEL"
	EnvLogFormat     = "FLEETLENS_LOG_FORMAT"
)

// Load reads configuration in layers: defaults, then the YAML file at
// path (or the XDG default when path is empty), then .env files, then
// the process environment.
func Load(path string) (*Config, error) {
	// .env values become visible to os.Getenv below. .env.local wins
	// for local development overrides.
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, uerr)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// Run on defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyFallbacks(cfg)

	if verr := validator.New().Struct(cfg); verr != nil {
		return nil, fmt.Errorf("validate config: %w", verr)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvRefreshToken); v != "" {
		cfg.Upstream.RefreshToken = v
	}
	if v := os.Getenv(EnvMapToken); v != "" {
		cfg.Map.AccessToken = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv(EnvUpstreamBase); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv(EnvTokenURL); v != "" {
		cfg.Upstream.TokenURL = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Log.Format = v
	}
}

// applyFallbacks restores defaults for fields a sparse or zeroed config
// file left empty, so core limits are never accidentally disabled.
func applyFallbacks(cfg *Config) {
	def := DefaultConfig()

	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.Upstream.PageSize <= 0 {
		cfg.Upstream.PageSize = def.Upstream.PageSize
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = def.Upstream.Timeout
	}
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = def.Fetch.Timeout
	}
	if cfg.Fetch.Concurrency <= 0 {
		cfg.Fetch.Concurrency = def.Fetch.Concurrency
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		cfg.Fetch.MaxBodyBytes = def.Fetch.MaxBodyBytes
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = def.Fetch.UserAgent
	}
	if cfg.Fetch.Cache.Backend == "" {
		cfg.Fetch.Cache.Backend = def.Fetch.Cache.Backend
	}
	if cfg.Fetch.Cache.TTL <= 0 {
		cfg.Fetch.Cache.TTL = def.Fetch.Cache.TTL
	}
	if cfg.Fetch.Cache.MaxEntries <= 0 {
		cfg.Fetch.Cache.MaxEntries = def.Fetch.Cache.MaxEntries
	}
	if cfg.Catalog.CacheTTL <= 0 {
		cfg.Catalog.CacheTTL = def.Catalog.CacheTTL
	}
	if len(cfg.Catalog.DataTypes) == 0 {
		cfg.Catalog.DataTypes = def.Catalog.DataTypes
	}
	if cfg.Catalog.Refresh.Interval <= 0 {
		cfg.Catalog.Refresh.Interval = def.Catalog.Refresh.Interval
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = def.Redis.Prefix
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = def.NATS.Subject
	}
	if cfg.NATS.Queue == "" {
		cfg.NATS.Queue = def.NATS.Queue
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = def.Tracing.Endpoint
	}
}
