// ABOUTME: Tests for catalog refresh configuration types
// ABOUTME: Validates defaults, intervals, and retry settings

package config

import (
	"testing"
	"time"
)

func TestCatalogConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultCatalogConfig()

	if cfg.CacheTTL.Std() != 6*time.Hour {
		t.Errorf("CacheTTL = %v, want 6h", cfg.CacheTTL.Std())
	}
	if len(cfg.DataTypes) != 1 || cfg.DataTypes[0] != "gbfs" {
		t.Errorf("DataTypes = %v, want [gbfs]", cfg.DataTypes)
	}
	if !cfg.Refresh.Enabled {
		t.Error("Refresh.Enabled should be true by default")
	}
	if cfg.Refresh.Interval.Std() != 6*time.Hour {
		t.Errorf("Refresh.Interval = %v, want 6h", cfg.Refresh.Interval.Std())
	}
	if !cfg.Refresh.RunInitial {
		t.Error("Refresh.RunInitial should be true by default")
	}
	if len(cfg.ExtraLocations) != 0 {
		t.Errorf("ExtraLocations = %v, want empty", cfg.ExtraLocations)
	}
}

func TestRetryConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.InitialDelay.Std() != 30*time.Second {
		t.Errorf("InitialDelay = %v, want 30s", cfg.InitialDelay.Std())
	}
	if cfg.MaxDelay.Std() != 30*time.Minute {
		t.Errorf("MaxDelay = %v, want 30m", cfg.MaxDelay.Std())
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", cfg.Multiplier)
	}
	if cfg.JitterFraction != 0.2 {
		t.Errorf("JitterFraction = %f, want 0.2", cfg.JitterFraction)
	}
}

func TestRefreshConfig_GetRetry(t *testing.T) {
	t.Parallel()

	t.Run("uses_custom_retry", func(t *testing.T) {
		t.Parallel()

		custom := &RetryConfig{
			MaxRetries:   10,
			InitialDelay: Duration(1 * time.Minute),
		}
		cfg := RefreshConfig{
			Enabled:  true,
			Interval: Duration(2 * time.Hour),
			Retry:    custom,
		}

		got := cfg.GetRetry()
		if got.MaxRetries != 10 {
			t.Errorf("GetRetry().MaxRetries = %d, want 10", got.MaxRetries)
		}
	})

	t.Run("uses_default_retry", func(t *testing.T) {
		t.Parallel()

		cfg := RefreshConfig{
			Enabled:  true,
			Interval: Duration(2 * time.Hour),
			Retry:    nil,
		}

		got := cfg.GetRetry()
		if got.MaxRetries != 5 {
			t.Errorf("GetRetry().MaxRetries = %d, want 5 (default)", got.MaxRetries)
		}
	})
}
