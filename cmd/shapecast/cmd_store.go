package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/store/duckdb"
)

var showLimit int

// importCmd copies the CSV series into DuckDB
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the CSV series into the DuckDB observations table",
	Long: `Reads the wide CSV named by --data (or data.path) and upserts every
observation into DuckDB, so later commands can run with --source duckdb.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

// showCmd prints stored runs
var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "List stored runs, or print one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "number of runs to list")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	frame, err := data.NewCSVProvider(cfg.Data.Path, cfg.Data.TimeLayout).LoadFrame(ctx)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", cfg.Data.Path, err)
	}

	client, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	written, err := duckdb.NewObservationRepo(client).InsertFrame(ctx, frame)
	if err != nil {
		return err
	}
	logger.Info("observations imported",
		zap.String("csv", cfg.Data.Path),
		zap.String("duckdb", client.Path()),
		zap.Int("series", len(frame.Series)),
		zap.Int("rows", written),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d observations of %d series\n", written, len(frame.Series))
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	repo := duckdb.NewRunRepo(client)

	if len(args) == 0 {
		ids, err := repo.List(ctx, showLimit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	}

	run, err := repo.Get(ctx, args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s (%s, threshold %g) at %s\n\n", run.ID, run.Metric, run.Threshold, run.CreatedAt.Format("2006-01-02 15:04:05"))
	printMatches(w, run.Matches)
	fmt.Fprintf(w, "\nForecast (%s, %d continuations)\n%s\n", run.Forecast.Mode, run.Forecast.Samples, run.Forecast)
	if len(run.Scenarios) > 0 {
		printScenarios(w, run.Scenarios)
	}
	return nil
}
