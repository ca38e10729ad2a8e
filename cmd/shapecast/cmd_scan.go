package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/finder"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
	"github.com/tunogya/shapecast/pkg/store/duckdb"
)

var (
	scanShape      shapeFlags
	scanSeries     []string
	scanCovariates []string
	scanScenarios  bool
	scanPlot       bool
	scanSave       bool
	scanJSON       bool
)

// scanCmd finds the shape and forecasts what follows
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the series for a shape and forecast its continuation",
	Long: `Scores every window of the series against the shape, keeps the
matches below the distance threshold, and aggregates what followed them.

With --covariate, every match must also be mirrored in each covariate CSV:
the covariate series of the same name, over the same trailing span, has to
resemble the shape as well.

Examples:
  shapecast scan --shape 0,1,2,3,2 --horizon 10
  shapecast scan --random 8 --metric dtw --jitter 2 --scenarios
  shapecast scan --shape 0,1,0 --mode weight --weigher decay --save`,
	RunE: runScan,
}

func init() {
	fs := scanCmd.Flags()
	scanShape.register(fs)
	registerScanFlags(fs)
	fs.StringSliceVar(&scanSeries, "series", nil, "restrict the scan to these series")
	fs.StringSliceVar(&scanCovariates, "covariate", nil, "wide CSV whose series must match alongside")
	fs.BoolVar(&scanScenarios, "scenarios", false, "also cluster the continuations into scenarios")
	fs.BoolVar(&scanPlot, "plot", false, "draw the forecast as text")
	fs.BoolVar(&scanSave, "save", false, "persist the run to DuckDB")
	fs.BoolVar(&scanJSON, "json", false, "print the result as JSON")
}

// scanResult is the printable outcome of one scan
type scanResult struct {
	RunID     string                  `json:"run_id"`
	Shape     *model.Shape            `json:"shape"`
	Matches   []model.MatchedSegment  `json:"matches"`
	Forecast  *model.Forecast         `json:"forecast"`
	Fan       []outcome.Band          `json:"fan,omitempty"`
	Summary   outcome.Summary         `json:"summary"`
	Scenarios []model.ScenarioCluster `json:"scenarios,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyScanFlags(cmd.Flags())

	scanCfg, err := cfg.Scan.Build()
	if err != nil {
		return err
	}
	fcCfg, err := cfg.Forecast.Build()
	if err != nil {
		return err
	}
	if scanPlot && !scanJSON {
		fcCfg.Plotter = textPlotter{w: cmd.OutOrStdout()}
	}
	shape, err := scanShape.build()
	if err != nil {
		return err
	}
	frame, err := loadFrame(ctx, scanSeries)
	if err != nil {
		return err
	}

	res := &scanResult{RunID: uuid.NewString(), Shape: shape}
	horizon := cfg.Forecast.Horizon
	var paths []outcome.Path

	if len(scanCovariates) > 0 {
		covs := make([]finder.Covariate, 0, len(scanCovariates))
		for _, path := range scanCovariates {
			cf, err := data.NewCSVProvider(path, cfg.Data.TimeLayout).LoadFrame(ctx)
			if err != nil {
				return fmt.Errorf("failed to load covariate %s: %w", path, err)
			}
			covs = append(covs, finder.Covariate{Name: path, Frame: cf, Shape: shape})
		}

		mf := finder.NewMulti(frame, shape, covs, cfg.Scan.Options(logger)...)
		multi, err := mf.ScanContext(ctx, scanCfg)
		if err != nil {
			return err
		}
		for _, m := range multi {
			seg := m.Primary
			seg.Distance = m.Distance
			res.Matches = append(res.Matches, seg)
		}
		if res.Forecast, err = mf.Forecast(horizon, fcCfg); err != nil {
			return err
		}
		if paths, err = mf.Continuations(horizon); err != nil {
			return err
		}
	} else {
		fd := finder.New(frame, shape, cfg.Scan.Options(logger)...)
		if res.Matches, err = fd.ScanContext(ctx, scanCfg); err != nil {
			return err
		}
		if res.Forecast, err = fd.Forecast(horizon, fcCfg); err != nil {
			return err
		}
		if paths, err = fd.Continuations(horizon); err != nil {
			return err
		}
		if scanScenarios {
			if res.Scenarios, err = fd.CreateScenarios(cfg.Scenario.Horizon, cfg.Scenario.Regions); err != nil {
				return err
			}
		}
	}

	res.Fan = outcome.Fan(paths, nil)
	res.Summary = outcome.Summarize(paths, shape.Last())
	logger.Info("scan finished",
		zap.String("run_id", res.RunID),
		zap.Int("matches", len(res.Matches)),
		zap.Int("continuations", len(paths)),
	)

	if scanSave {
		if err := saveRun(cmd, res); err != nil {
			return err
		}
	}

	if scanJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printScan(cmd.OutOrStdout(), res)
	return nil
}

func saveRun(cmd *cobra.Command, res *scanResult) error {
	client, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	run := &duckdb.Run{
		ID:        res.RunID,
		Shape:     res.Shape.Values,
		Metric:    cfg.Scan.Metric,
		Threshold: cfg.Scan.Threshold,
		CreatedAt: time.Now(),
		Matches:   res.Matches,
		Forecast:  res.Forecast,
		Scenarios: res.Scenarios,
	}
	if err := duckdb.NewRunRepo(client).Save(cmd.Context(), run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	logger.Info("run saved", zap.String("run_id", run.ID), zap.String("path", client.Path()))
	return nil
}

func printScan(w io.Writer, res *scanResult) {
	fmt.Fprintf(w, "Run %s: %d matches\n\n", res.RunID, len(res.Matches))
	printMatches(w, res.Matches)

	fmt.Fprintf(w, "\nForecast (%s, %d continuations)\n", res.Forecast.Mode, res.Forecast.Samples)
	fmt.Fprintln(w, strings.TrimRight(res.Forecast.String(), "\n"))
	if res.Summary.SampleCount > 0 {
		fmt.Fprintln(w, res.Summary.String())
	}
	if len(res.Scenarios) > 0 {
		fmt.Fprintln(w)
		printScenarios(w, res.Scenarios)
	}
}

func printMatches(w io.Writer, matches []model.MatchedSegment) {
	fmt.Fprintf(w, "%-5s %-20s %-8s %-12s %-10s\n", "Rank", "Series", "Length", "End", "Distance")
	for i, m := range matches {
		fmt.Fprintf(w, "%-5d %-20s %-8d %-12s %-.4f\n",
			i+1, m.Series, len(m.Values), m.EndTime.Format("2006-01-02"), m.Distance)
	}
}

func printScenarios(w io.Writer, scenarios []model.ScenarioCluster) {
	fmt.Fprintf(w, "%-9s %-12s %-8s %s\n", "Scenario", "Probability", "Members", "Trajectory")
	for _, sc := range scenarios {
		fmt.Fprintf(w, "%-9d %-12.3f %-8d %.3f\n", sc.ID, sc.Probability, len(sc.Members), sc.Trajectory)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
