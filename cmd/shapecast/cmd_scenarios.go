package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/finder"
	"github.com/tunogya/shapecast/pkg/model"
)

var (
	scenarioShape   shapeFlags
	scenarioSeries  []string
	scenarioPredict bool
	scenarioJSON    bool
)

// scenariosCmd clusters the continuations of the matches
var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Cluster what followed the matches into at most seven scenarios",
	Long: `Scans for the shape, then groups the continuations with Ward linkage.
Each scenario carries its mean trajectory and the share of matches in it.
Members are attributed with their series, end decade, value scale and the
region given in the scenario.regions config map.

With --predict the continuations are clustered without dampening, cut at a
third of the horizon, and no members are reported.`,
	RunE: runScenarios,
}

func init() {
	fs := scenariosCmd.Flags()
	scenarioShape.register(fs)
	registerScanFlags(fs)
	fs.StringSliceVar(&scenarioSeries, "series", nil, "restrict the scan to these series")
	fs.BoolVar(&scenarioPredict, "predict", false, "cluster for prediction: no dampening, no members")
	fs.BoolVar(&scenarioJSON, "json", false, "print the scenarios as JSON")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyScanFlags(cmd.Flags())

	scanCfg, err := cfg.Scan.Build()
	if err != nil {
		return err
	}
	shape, err := scenarioShape.build()
	if err != nil {
		return err
	}
	frame, err := loadFrame(ctx, scenarioSeries)
	if err != nil {
		return err
	}

	fd := finder.New(frame, shape, cfg.Scan.Options(logger)...)
	if _, err := fd.ScanContext(ctx, scanCfg); err != nil {
		return err
	}

	var scenarios []model.ScenarioCluster
	if scenarioPredict {
		scenarios, err = fd.CreateScenariosPredict(cfg.Scenario.Horizon)
	} else {
		scenarios, err = fd.CreateScenarios(cfg.Scenario.Horizon, cfg.Scenario.Regions)
	}
	if err != nil {
		return err
	}
	logger.Info("scenarios built",
		zap.Int("matches", len(fd.Matches())),
		zap.Int("scenarios", len(scenarios)),
		zap.Bool("predict", scenarioPredict),
	)

	if scenarioJSON {
		return writeJSON(cmd.OutOrStdout(), scenarios)
	}
	if len(scenarios) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no match has enough history after it")
		return nil
	}
	printScenarios(cmd.OutOrStdout(), scenarios)
	return nil
}
