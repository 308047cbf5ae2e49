// Package main is the Meridian command line: offline optimization, signal-driven
// backtests and seeding of the history database.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aristath/meridian/internal/config"
	"github.com/aristath/meridian/internal/di"
	"github.com/aristath/meridian/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	dataDir      string
	logLevel     string
	outputFormat string
)

// rootCmd is the base command for the Meridian CLI
var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Portfolio optimization and backtesting",
	Long: `Meridian computes constrained mean-variance portfolios from shrunk covariance
estimates and replays signal-driven strategies through a daily backtest simulator.

Configuration is read from the environment (.env) exactly like the server; the
flags below override it for a single invocation.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides MERIDIAN_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openContainer loads configuration, applies flag overrides and wires the container.
// Callers must Close the container.
func openContainer() (*di.Container, *di.JobInstances, *config.Config, zerolog.Logger, error) {
	if dataDir != "" {
		if err := os.Setenv("MERIDIAN_DATA_DIR", dataDir); err != nil {
			return nil, nil, nil, zerolog.Nop(), err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// CLI output goes to stdout; logs stay on stderr and quiet by default
	level := cfg.LogLevel
	if logLevel == "" {
		level = "warn"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true}).Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		return nil, nil, nil, log, err
	}
	return container, jobs, cfg, log, nil
}

func validateFormat() error {
	switch outputFormat {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported format %q: use table or json", outputFormat)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

