package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/config"
)

var (
	cfgFile  string
	verbose  bool
	dataPath string
	source   string

	cfg    *config.Config
	logger *zap.Logger
)

const (
	sourceCSV    = "csv"
	sourceDuckDB = "duckdb"
)

var rootCmd = &cobra.Command{
	Use:   "shapecast",
	Short: "Find where a shape occurred in parallel series and what followed",
	Long: `shapecast scans a set of time series for windows that resemble a
reference shape, then summarizes what happened after each match as a
forecast with a 95% confidence band, or as clustered scenarios.

Series are read from a wide CSV (a time column, one column per series)
or from the DuckDB observations table filled by "shapecast import".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dataPath != "" {
			cfg.Data.Path = dataPath
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if source != sourceCSV && source != sourceDuckDB {
			return fmt.Errorf("unknown source %q, want %s or %s", source, sourceCSV, sourceDuckDB)
		}

		logger, err = cfg.Logging.NewLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "shapecast.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "wide CSV of series (overrides data.path)")
	rootCmd.PersistentFlags().StringVar(&source, "source", sourceCSV, "where series are read from: csv or duckdb")

	rootCmd.AddCommand(scanCmd, scenariosCmd, importCmd, showCmd, searchCmd, submitCmd, initConfigCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
