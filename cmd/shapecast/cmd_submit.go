package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/queue/nats"
)

var (
	submitShape     shapeFlags
	submitSeries    []string
	submitScenarios bool
	submitWait      time.Duration
)

// submitCmd queues a scan for the worker
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a scan request for the worker over NATS",
	Long: `Publishes a scan request on the shapecast stream. The worker runs it
against the DuckDB observations and stores the run under the printed id,
which "shapecast show <id>" prints once it is done. With --wait the
command stays subscribed to the results and prints the answer itself.`,
	RunE: runSubmit,
}

func init() {
	fs := submitCmd.Flags()
	submitShape.register(fs)
	registerScanFlags(fs)
	fs.StringSliceVar(&submitSeries, "series", nil, "restrict the scan to these series")
	fs.BoolVar(&submitScenarios, "scenarios", false, "also cluster the continuations")
	fs.DurationVar(&submitWait, "wait", 0, "wait this long for the result and print it")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyScanFlags(cmd.Flags())

	shape, err := submitShape.build()
	if err != nil {
		return err
	}

	req := nats.NewScanRequest(shape.Values, cfg.Forecast.Horizon)
	req.Series = submitSeries
	req.Metric = cfg.Scan.Metric
	req.Threshold = cfg.Scan.Threshold
	req.Jitter = cfg.Scan.Jitter
	req.Select = cfg.Scan.Select
	req.MinMatches = cfg.Scan.MinMatches
	req.RelaxStep = cfg.Scan.RelaxStep
	req.MaxRelaxations = cfg.Scan.MaxRelaxations
	req.Mode = cfg.Forecast.Mode
	req.Weigher = cfg.Forecast.Weigher
	req.Scenarios = submitScenarios

	client, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.EnsureStream(ctx); err != nil {
		return err
	}
	if submitWait <= 0 {
		if _, err := client.Submit(ctx, req, false); err != nil {
			return err
		}
		logger.Info("scan request published", zap.String("id", req.ID), zap.String("subject", nats.SubjectScanRequest))
		fmt.Fprintln(cmd.OutOrStdout(), req.ID)
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, submitWait)
	defer cancel()
	res, err := client.Submit(waitCtx, req, true)
	if err != nil {
		return err
	}
	if res.Failed() {
		return fmt.Errorf("scan %s failed: %s", res.RequestID, res.Error)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d matches\n\n", res.RequestID, len(res.Matches))
	printMatches(out, res.Matches)
	if res.Forecast != nil {
		fmt.Fprintf(out, "\nForecast (%s, %d continuations)\n", res.Forecast.Mode, res.Forecast.Samples)
		fmt.Fprintln(out, strings.TrimRight(res.Forecast.String(), "\n"))
	}
	if len(res.Scenarios) > 0 {
		fmt.Fprintln(out)
		printScenarios(out, res.Scenarios)
	}
	return nil
}
