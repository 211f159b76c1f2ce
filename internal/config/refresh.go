// ABOUTME: Catalog cache and background refresh configuration
// ABOUTME: Controls refresh cadence, retry backoff, and extra city inference rules

package config

import "time"

// CatalogConfig controls the operator catalog cache and its refresh loop.
type CatalogConfig struct {
	// CacheTTL bounds how long a cached catalog listing stays servable.
	CacheTTL Duration `yaml:"cache_ttl" validate:"omitempty,gte=0"`
	// DataTypes lists the catalog data types the refresh service maintains.
	DataTypes []string `yaml:"data_types" validate:"omitempty,dive,oneof=gbfs gtfs gtfs_rt"`

	Refresh RefreshConfig `yaml:"refresh"`

	// ExtraLocations extends the built-in city inference table. Entries
	// are appended after the built-ins and never shadow them.
	ExtraLocations []LocationRule `yaml:"extra_locations" validate:"omitempty,dive"`
}

// RefreshConfig controls the background catalog refresh loop.
type RefreshConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval between scheduled refreshes of each data type.
	Interval Duration `yaml:"interval" validate:"omitempty,gte=0"`
	// RunInitial refreshes immediately at daemon startup instead of
	// waiting for the first tick.
	RunInitial bool `yaml:"run_initial"`
	// Retry overrides the default backoff for failed refreshes.
	Retry *RetryConfig `yaml:"retry,omitempty"`
}

// GetRetry returns the retry configuration, using defaults if not set.
func (c *RefreshConfig) GetRetry() RetryConfig {
	if c.Retry != nil {
		return *c.Retry
	}
	return DefaultRetryConfig()
}

// LocationRule maps a catalog-entry substring to a city. Matching is
// case-insensitive against the operator name and producer URL.
type LocationRule struct {
	Match       string `yaml:"match" validate:"required"`
	City        string `yaml:"city" validate:"required"`
	CountryCode string `yaml:"country_code"`
}

// RetryConfig holds retry and backoff settings for failed refreshes.
type RetryConfig struct {
	// MaxRetries is the attempt cap before waiting for the next
	// scheduled interval.
	MaxRetries int `yaml:"max_retries"`
	// InitialDelay before the first retry.
	InitialDelay Duration `yaml:"initial_delay"`
	// MaxDelay caps exponential growth.
	MaxDelay Duration `yaml:"max_delay"`
	// Multiplier for exponential backoff.
	Multiplier float64 `yaml:"multiplier"`
	// JitterFraction adds randomness to spread load (0.2 = +/-20%).
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialDelay:   Duration(30 * time.Second),
		MaxDelay:       Duration(30 * time.Minute),
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// DefaultCatalogConfig returns catalog defaults: 6h cache with a
// matching refresh loop over the gbfs data type.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		CacheTTL:  Duration(6 * time.Hour),
		DataTypes: []string{"gbfs"},
		Refresh: RefreshConfig{
			Enabled:    true,
			Interval:   Duration(6 * time.Hour),
			RunInitial: true,
		},
	}
}
