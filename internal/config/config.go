// ABOUTME: Configuration types for the fleetlens service
// ABOUTME: Defines the YAML config tree, defaults, and XDG-style paths

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the fleetlens daemon and CLI.
type Config struct {
	// DataDir is where fleetlens keeps persistent state (catalog cache).
	DataDir string `yaml:"data_dir"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Map      MapConfig      `yaml:"map"`
	HTTP     HTTPConfig     `yaml:"http"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Redis    RedisConfig    `yaml:"redis"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// UpstreamConfig points at the operator catalog API.
type UpstreamConfig struct {
	// BaseURL is the catalog API root, e.g. https://catalog.example.org/v1.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// TokenURL is the refresh-token exchange endpoint.
	TokenURL string `yaml:"token_url" validate:"omitempty,url"`
	// RefreshToken is the long-lived credential exchanged for access
	// tokens. Environment only (FLEETLENS_REFRESH_TOKEN), never YAML.
	RefreshToken string `yaml:"-"`
	// PageSize is the pagination limit per catalog request.
	PageSize int `yaml:"page_size" validate:"omitempty,gte=1,lte=1000"`
	// Timeout bounds a single catalog page request.
	Timeout Duration `yaml:"timeout" validate:"omitempty,gte=0"`
}

// MapConfig holds frontend map settings served through the API.
type MapConfig struct {
	// AccessToken is the map tile provider token. Environment only
	// (FLEETLENS_MAP_TOKEN), never YAML.
	AccessToken string `yaml:"-"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// CORSOrigins is the allowed origin list for browser clients.
	CORSOrigins []string `yaml:"cors_origins"`
}

// FetchConfig controls the concurrent feed fetcher.
type FetchConfig struct {
	// Timeout is the per-request time box. One slow feed never holds a
	// batch past this.
	Timeout Duration `yaml:"timeout" validate:"omitempty,gte=0"`
	// Concurrency caps in-flight feed requests per process.
	Concurrency int `yaml:"concurrency" validate:"omitempty,gte=1"`
	// MaxBodyBytes caps a single response body read.
	MaxBodyBytes int64  `yaml:"max_body_bytes" validate:"omitempty,gte=1"`
	UserAgent    string `yaml:"user_agent"`

	Cache FetchCacheConfig `yaml:"cache"`
}

// Batch cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// FetchCacheConfig controls the short-lived batch result cache.
type FetchCacheConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=memory redis"`
	// TTL is how long an identical batch short-circuits upstream calls.
	TTL        Duration `yaml:"ttl" validate:"omitempty,gte=0"`
	MaxEntries int      `yaml:"max_entries" validate:"omitempty,gte=1"`
}

// RedisConfig points at an optional shared Redis, used when the fetch
// cache backend is "redis".
type RedisConfig struct {
	Addr string `yaml:"addr"`
	// Password comes from FLEETLENS_REDIS_PASSWORD only.
	Password string `yaml:"-"`
	DB       int    `yaml:"db" validate:"omitempty,gte=0"`
	Prefix   string `yaml:"prefix"`
}

// NATSConfig controls catalog eventing. An empty URL disables NATS
// entirely; the daemon runs fine without it.
type NATSConfig struct {
	URL string `yaml:"url"`
	// Subject is the prefix for refresh commands and update events.
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// TracingConfig controls OpenTelemetry trace export.
type TracingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	Insecure      bool    `yaml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Upstream: UpstreamConfig{
			PageSize: 1000,
			Timeout:  Duration(15 * time.Second),
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Fetch: FetchConfig{
			Timeout:      Duration(8 * time.Second),
			Concurrency:  32,
			MaxBodyBytes: 10 << 20,
			UserAgent:    "fleetlens/1.0 (+https://github.com/fleetlens-io/fleetlens)",
			Cache: FetchCacheConfig{
				Backend:    CacheBackendMemory,
				TTL:        Duration(60 * time.Second),
				MaxEntries: 256,
			},
		},
		Redis: RedisConfig{
			Prefix: "fleetlens",
		},
		Catalog: DefaultCatalogConfig(),
		NATS: NATSConfig{
			Subject: "fleetlens.catalog",
			Queue:   "fleetlens-catalog",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
	}
}

// DefaultDataDir returns the platform data directory for fleetlens.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "fleetlens")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "fleetlens")
	}
	return "/var/lib/fleetlens"
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fleetlens", "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "fleetlens", "config.yaml")
	}
	return "/etc/fleetlens/config.yaml"
}

// Duration wraps time.Duration so YAML values can be written as "8s" or
// "6h". Bare integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("line %d: duration must be a string like \"30s\" or an integer nanosecond count", value.Line)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
