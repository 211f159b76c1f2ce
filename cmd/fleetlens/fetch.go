// ABOUTME: Fetch command for one-shot feed retrieval
// ABOUTME: Fetches one or more feed URLs concurrently and prints results

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetlens-io/fleetlens/internal/config"
	"github.com/fleetlens-io/fleetlens/internal/fetch"
	"github.com/fleetlens-io/fleetlens/internal/observability"
)

func newFetchCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "fetch <url> [<url>...]",
		Short: "Fetch feed URLs concurrently",
		Long: `Fetch one or more feed URLs through the concurrent fetch layer.
Failures are reported per URL and never abort the batch.

Examples:
  fleetlens fetch https://gbfs.example.org/gbfs.json
  fleetlens fetch https://a.example/gbfs.json https://b.example/gbfs.json --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), args, outputJSON)
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output results as JSON")

	return cmd
}

func runFetch(ctx context.Context, urls []string, outputJSON bool) error {
	slog.SetDefault(observability.CLILogger(cliLogLevel()))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	group := fetch.NewGroup(fetch.GroupConfig{
		Fetcher: fetch.NewFetcher(&fetch.FetcherConfig{
			Timeout:      cfg.Fetch.Timeout.Std(),
			UserAgent:    cfg.Fetch.UserAgent,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}),
		Concurrency: cfg.Fetch.Concurrency,
	})

	items := make([]fetch.Item, len(urls))
	for i, url := range urls {
		items[i] = fetch.Item{Name: url, URL: url}
	}

	results := group.FetchMany(ctx, items)

	if outputJSON {
		type itemOutput struct {
			Name  string          `json:"name"`
			Data  json.RawMessage `json:"data"`
			Error *string         `json:"error"`
		}
		out := make([]itemOutput, 0, len(results))
		for _, res := range results {
			entry := itemOutput{Name: res.Name, Data: res.Data}
			if res.Err != nil {
				msg := res.Err.Error()
				entry.Error = &msg
			}
			out = append(out, entry)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Printf("FAIL %s\n     %v\n", res.Name, res.Err)
			continue
		}
		fmt.Printf("OK   %s (%d bytes)\n", res.Name, len(res.Data))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(results))
	}

	return nil
}
