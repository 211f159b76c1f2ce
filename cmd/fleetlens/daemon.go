// ABOUTME: Daemon command for running fleetlens as a service
// ABOUTME: Wires catalog refresh, feed fetching, NATS eventing, and the HTTP API

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetlens-io/fleetlens/internal/api"
	"github.com/fleetlens-io/fleetlens/internal/auth"
	"github.com/fleetlens-io/fleetlens/internal/catalog"
	"github.com/fleetlens-io/fleetlens/internal/config"
	"github.com/fleetlens-io/fleetlens/internal/events"
	"github.com/fleetlens-io/fleetlens/internal/fetch"
	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/pipeline"
	internalredis "github.com/fleetlens-io/fleetlens/internal/redis"
	"github.com/fleetlens-io/fleetlens/internal/resilience"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

func newDaemonCmd() *cobra.Command {
	var (
		httpAddr string
		dataDir  string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the fleetlens daemon",
		Long: `Start the FleetLens daemon: the operator catalog is kept refreshed in
the background, feed fetches are served through the HTTP API, and
catalog refresh commands are accepted over NATS when configured.

The daemon runs in the foreground until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if logFormat != "" {
				cfg.Log.Format = logFormat
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the catalog cache (overrides config)")

	return cmd
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	// Set up logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "fleetlens",
		Version:     version,
	}, os.Stdout)

	slog.SetDefault(logger)
	logger.Info("starting fleetlens daemon",
		slog.String("version", version),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("data_dir", cfg.DataDir),
	)

	// Set up tracing.
	tracer, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		Enabled:       cfg.Tracing.Enabled,
		ServiceName:   "fleetlens",
		Version:       version,
		Endpoint:      cfg.Tracing.Endpoint,
		Insecure:      cfg.Tracing.Insecure,
		SamplingRatio: cfg.Tracing.SamplingRatio,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	// Ensure data directory exists.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	audit := observability.NewAuditLogger(logger)
	metrics := observability.NewFetchMetrics()

	// Create catalog cache.
	catalogCache, err := catalog.NewCache(catalog.CacheConfig{
		Path: filepath.Join(cfg.DataDir, "catalog"),
		TTL:  cfg.Catalog.CacheTTL.Std(),
	})
	if err != nil {
		return fmt.Errorf("creating catalog cache: %w", err)
	}
	defer catalogCache.Close()
	logger.Info("catalog cache initialized")

	// Create catalog client and refresh service if an upstream is
	// configured. Without one the catalog endpoints answer 503.
	var (
		service *catalog.Service
		breaker *resilience.CircuitBreaker
	)
	if cfg.Upstream.BaseURL != "" {
		tokens := auth.NewTokenManager(auth.Config{
			TokenURL:     cfg.Upstream.TokenURL,
			RefreshToken: cfg.Upstream.RefreshToken,
			Timeout:      cfg.Upstream.Timeout.Std(),
			Audit:        audit,
		})

		breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:   "catalog",
			Logger: logger,
		})

		client, err := catalog.NewClient(catalog.ClientConfig{
			BaseURL:  cfg.Upstream.BaseURL,
			Tokens:   tokens,
			PageSize: cfg.Upstream.PageSize,
			Timeout:  cfg.Upstream.Timeout.Std(),
			Breaker:  breaker,
			Locator:  catalog.NewLocator(locationRules(cfg.Catalog.ExtraLocations)),
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("creating catalog client: %w", err)
		}

		service, err = catalog.NewService(catalog.ServiceConfig{
			Client:     client,
			Cache:      catalogCache,
			DataTypes:  catalogDataTypes(cfg.Catalog.DataTypes),
			Interval:   cfg.Catalog.Refresh.Interval.Std(),
			RunInitial: cfg.Catalog.Refresh.RunInitial,
			Retry:      backoffConfig(cfg.Catalog.Refresh.GetRetry()),
			Logger:     logger,
			Audit:      audit,
		})
		if err != nil {
			return fmt.Errorf("creating catalog service: %w", err)
		}
		logger.Info("catalog service initialized",
			slog.String("base_url", cfg.Upstream.BaseURL),
		)
	} else {
		logger.Warn("no catalog upstream configured, catalog endpoints disabled")
	}

	// Connect NATS eventing if configured.
	var natsClient *events.Client
	if cfg.NATS.URL != "" && service != nil {
		ecfg := events.DefaultNATSConfig()
		ecfg.URL = cfg.NATS.URL
		ecfg.CommandSubject = cfg.NATS.Subject + ".refresh"
		ecfg.UpdatedSubject = cfg.NATS.Subject + ".updated"
		ecfg.QueueGroup = cfg.NATS.Queue

		nc, err := events.NewClient(ecfg, events.NewHandler(service, audit), logger)
		if err != nil {
			return fmt.Errorf("creating NATS client: %w", err)
		}
		if err := nc.Connect(ctx); err != nil {
			logger.Warn("NATS unavailable, catalog eventing disabled",
				slog.String("error", err.Error()),
			)
		} else {
			natsClient = nc
		}
	}

	// Publish catalog updates after every successful refresh. natsClient
	// is set before the refresh loops start, so the hook reads a stable
	// value.
	if service != nil {
		service.SetOnRefreshed(func(dataType types.DataType, count int, took time.Duration) {
			if natsClient != nil {
				natsClient.PublishUpdated(dataType, count, took)
			}
		})

		if cfg.Catalog.Refresh.Enabled {
			if err := service.Start(ctx); err != nil {
				return fmt.Errorf("starting catalog service: %w", err)
			}
		}
	}

	if natsClient != nil {
		if err := natsClient.Subscribe(ctx); err != nil {
			logger.Warn("NATS subscription failed",
				slog.String("error", err.Error()),
			)
		}
	}

	// Create the feed fetch layer.
	fetcher := fetch.NewFetcher(&fetch.FetcherConfig{
		Timeout:      cfg.Fetch.Timeout.Std(),
		UserAgent:    cfg.Fetch.UserAgent,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})

	var redisClient *internalredis.Client
	var batchCache fetch.BatchCache
	if cfg.Fetch.Cache.Backend == config.CacheBackendRedis {
		redisClient, err = internalredis.NewClient(internalredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-memory batch cache",
				slog.String("error", err.Error()),
			)
		} else {
			store := internalredis.NewStore(redisClient, internalredis.StoreConfig{
				KeyPrefix:  "batch:",
				DefaultTTL: cfg.Fetch.Cache.TTL.Std(),
			})
			batchCache = fetch.NewRedisCache(store, cfg.Fetch.Cache.TTL.Std(), logger)
			logger.Info("redis batch cache initialized", slog.String("addr", cfg.Redis.Addr))
		}
	}
	if batchCache == nil {
		batchCache = fetch.NewMemoryCache(fetch.MemoryCacheConfig{
			TTL:        cfg.Fetch.Cache.TTL.Std(),
			MaxEntries: cfg.Fetch.Cache.MaxEntries,
		})
	}

	group := fetch.NewGroup(fetch.GroupConfig{
		Fetcher:     fetcher,
		Concurrency: cfg.Fetch.Concurrency,
		Cache:       batchCache,
		Metrics:     metrics,
		Logger:      logger,
	})

	// Create the aggregation pipeline.
	pl, err := pipeline.New(pipeline.Config{
		Fetcher: group,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	// Create API handler and router.
	handlerCfg := api.HandlerConfig{
		Pipeline: pl,
		Proxy:    group,
		Cache:    catalogCache,
		Metrics:  metrics,
		Audit:    audit,
		Breaker:  breaker,
		MapToken: cfg.Map.AccessToken,
		Logger:   logger,
	}
	if service != nil {
		handlerCfg.Catalog = service
	}
	if redisClient != nil {
		handlerCfg.Redis = redisClient
	}
	if natsClient != nil {
		handlerCfg.NATS = natsClient
	}
	handler := api.NewHandler(handlerCfg)

	router := api.NewRouter(api.RouterConfig{
		Handler:     handler,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting HTTP server", slog.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("daemon ready, waiting for requests")
	<-ctx.Done()

	logger.Info("shutting down daemon")

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
	}

	if service != nil {
		service.Stop()
	}

	if natsClient != nil {
		natsClient.Close()
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Redis close error", slog.String("error", err.Error()))
		}
	}

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("daemon stopped")

	return nil
}

// locationRules converts config inference rules to catalog rules.
func locationRules(extra []config.LocationRule) []catalog.LocationRule {
	rules := make([]catalog.LocationRule, len(extra))
	for i, r := range extra {
		rules[i] = catalog.LocationRule{
			Match:       r.Match,
			City:        r.City,
			CountryCode: r.CountryCode,
		}
	}
	return rules
}

// catalogDataTypes converts validated config strings to data types.
func catalogDataTypes(raw []string) []types.DataType {
	dataTypes := make([]types.DataType, 0, len(raw))
	for _, s := range raw {
		dt, err := types.ParseDataType(s)
		if err != nil {
			continue
		}
		dataTypes = append(dataTypes, dt)
	}
	return dataTypes
}

// backoffConfig converts config retry settings to a backoff policy.
func backoffConfig(rc config.RetryConfig) resilience.BackoffConfig {
	return resilience.BackoffConfig{
		MaxRetries:     rc.MaxRetries,
		InitialDelay:   rc.InitialDelay.Std(),
		MaxDelay:       rc.MaxDelay.Std(),
		Multiplier:     rc.Multiplier,
		JitterFraction: rc.JitterFraction,
	}
}
