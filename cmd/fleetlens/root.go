// ABOUTME: Root command for fleetlens CLI
// ABOUTME: Sets up global flags and subcommands

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Global flags.
var (
	cfgFile   string
	logLevel  string
	logFormat string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleetlens",
		Short: "FleetLens - Shared mobility feed discovery and aggregation",
		Long: `FleetLens discovers shared mobility operators from an upstream catalog,
classifies each one as station-based or free-floating from its published
GBFS feeds, and aggregates live availability counts per city.

Supports daemon mode with an HTTP API and NATS catalog eventing, plus
one-shot commands for listing operators, aggregating a city, and
fetching feeds directly.`,
	}

	// Global flags.
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/fleetlens/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")

	// Add subcommands.
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newOperatorsCmd())
	cmd.AddCommand(newAggregateCmd())
	cmd.AddCommand(newFetchCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fleetlens version %s\n", version)
			fmt.Printf("  Git SHA:    %s\n", gitSHA)
			fmt.Printf("  Build Time: %s\n", buildTime)
		},
	}
}

// cliLogLevel keeps one-shot command output clean unless --log-level
// asks for more.
func cliLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	return "warn"
}
