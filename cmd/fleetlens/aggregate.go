// ABOUTME: Aggregate command for one-shot city aggregation runs
// ABOUTME: Runs the full pipeline over one city's operators and prints JSON

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fleetlens-io/fleetlens/internal/config"
	"github.com/fleetlens-io/fleetlens/internal/fetch"
	"github.com/fleetlens-io/fleetlens/internal/observability"
	"github.com/fleetlens-io/fleetlens/internal/pipeline"
	"github.com/fleetlens-io/fleetlens/internal/types"
)

func newAggregateCmd() *cobra.Command {
	var typeStr string

	cmd := &cobra.Command{
		Use:   "aggregate <city>",
		Short: "Aggregate live availability for one city",
		Long: `Run the full aggregation pipeline over one city's operators: fetch each
discovery document, classify the system, and pull live availability
counts. Results are printed as JSON, with per-operator errors inline.

Examples:
  fleetlens aggregate Oslo
  fleetlens aggregate "Buenos Aires" --type gbfs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(cmd.Context(), args[0], typeStr)
		},
	}

	cmd.Flags().StringVar(&typeStr, "type", "gbfs", "catalog data type (gbfs, gtfs, gtfs_rt)")

	return cmd
}

func runAggregate(ctx context.Context, city, typeStr string) error {
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

	set, err := svc.ListOperators(ctx, dataType, false)
	if err != nil {
		return fmt.Errorf("listing operators: %w", err)
	}

	var matched []types.OperatorRecord
	for _, rec := range set.Operators {
		if strings.EqualFold(rec.Location, city) {
			matched = append(matched, rec)
		}
	}

	if len(matched) == 0 {
		fmt.Fprintf(os.Stderr, "no operators found for %q\n", city)
		fmt.Println("[]")
		return nil
	}

	group := fetch.NewGroup(fetch.GroupConfig{
		Fetcher: fetch.NewFetcher(&fetch.FetcherConfig{
			Timeout:      cfg.Fetch.Timeout.Std(),
			UserAgent:    cfg.Fetch.UserAgent,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}),
		Concurrency: cfg.Fetch.Concurrency,
	})

	pl, err := pipeline.New(pipeline.Config{Fetcher: group})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	results := pl.Run(ctx, matched)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
