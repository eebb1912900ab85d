// Package cmd provides the CLI commands for ratelog.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/ratelog/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ratelog",
	Short: "ratelog - rate limited structured logging",
	Long: `ratelog limits log statements per call site: every N occurrences, at most
once per period, sampled, or within a token bucket rate. State can be split
per aggregation key and bound to request scopes.

Configuration:
  Config is loaded from ratelog.yaml in the current directory,
  $HOME/.ratelog/, or /etc/ratelog/.

  Environment variables can override config values with the RATELOG_ prefix.
  Example: RATELOG_METRICS_ADDR=:9090

Commands:
  demo        Run a synthetic HTTP workload through the rate limited logger
  stats       Show statement counters of a running server
  config      Print the effective configuration
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ratelog.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newBaseHandler builds the stderr handler selected by logging.format.
func newBaseHandler(cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}
