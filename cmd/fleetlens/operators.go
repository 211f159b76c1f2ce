// ABOUTME: Operators command for one-shot catalog listings
// ABOUTME: Prints the operator catalog as a table or JSON

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetlens-io/fleetlens/internal/auth"
	"github.com/fleetlens-io/fleetlens/internal/catalog"
	"github.com/fleetlens-io/fleetlens/internal/config"
	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

func newOperatorsCmd() *cobra.Command {
	var (
		typeStr    string
		force      bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "operators",
		Short: "List operators from the catalog",
		Long: `List mobility operators from the upstream catalog.

Listings are served from the local catalog cache when fresh. Use
--force to bypass the cache and refresh from upstream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperators(cmd.Context(), typeStr, force, outputJSON)
		},
	}

	cmd.Flags().StringVar(&typeStr, "type", "gbfs", "catalog data type (gbfs, gtfs, gtfs_rt)")
	cmd.Flags().BoolVar(&force, "force", false, "bypass the cache and refresh from upstream")
	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	return cmd
}

func runOperators(ctx context.Context, typeStr string, force, outputJSON bool) error {
	slog.SetDefault(observability.CLILogger(cliLogLevel()))

	dataType, err := types.ParseDataType(typeStr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	svc, cleanup, err := openCatalogService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	set, err := svc.ListOperators(ctx, dataType, force)
	if err != nil {
		return fmt.Errorf("listing operators: %w", err)
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(set.Operators)
	}

	source := "cache"
	if !set.CacheHit {
		source = "upstream"
	}
	fmt.Printf("%d operators (%s, fetched %s)\n\n", len(set.Operators), source, set.FetchedAt.Format(time.RFC3339))

	for _, op := range set.Operators {
		fmt.Printf("%-28s %-24s %s\n", op.SystemID, op.Location, op.Name)
	}

	return nil
}

// openCatalogService builds the catalog stack for one-shot commands:
// the local cache plus the upstream client, without background refresh
// loops. The cleanup func closes the cache.
func openCatalogService(cfg *config.Config) (*catalog.Service, func(), error) {
	if cfg.Upstream.BaseURL == "" {
		return nil, nil, fmt.Errorf("no catalog upstream configured (set upstream.base_url or %s)", config.EnvUpstreamBase)
	}

	cache, err := catalog.NewCache(catalog.CacheConfig{
		Path: filepath.Join(cfg.DataDir, "catalog"),
		TTL:  cfg.Catalog.CacheTTL.Std(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening catalog cache: %w", err)
	}

	tokens := auth.NewTokenManager(auth.Config{
		TokenURL:     cfg.Upstream.TokenURL,
		RefreshToken: cfg.Upstream.RefreshToken,
		Timeout:      cfg.Upstream.Timeout.Std(),
	})

	client, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL:  cfg.Upstream.BaseURL,
		Tokens:   tokens,
		PageSize: cfg.Upstream.PageSize,
		Timeout:  cfg.Upstream.Timeout.Std(),
		Locator:  catalog.NewLocator(locationRules(cfg.Catalog.ExtraLocations)),
	})
	if err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("creating catalog client: %w", err)
	}

	svc, err := catalog.NewService(catalog.ServiceConfig{
		Client: client,
		Cache:  cache,
	})
	if err != nil {
		cache.Close()
		return nil, nil, fmt.Errorf("creating catalog service: %w", err)
	}

	cleanup := func() {
		if cerr := cache.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "closing catalog cache: %v\n", cerr)
		}
	}

	return svc, cleanup, nil
}
