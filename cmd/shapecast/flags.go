package main

import (
	"github.com/spf13/pflag"
)

// scan and forecast flags override the config file when set
var flagValues struct {
	metric          string
	threshold       float64
	jitter          int
	selectMatches   bool
	minMatches      int
	relaxStep       float64
	maxRelaxations  int
	workers         int
	horizon         int
	mode            string
	weigher         string
	scenarioHorizon int
}

func registerScanFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagValues.metric, "metric", "euclidean", "distance: euclidean or dtw")
	fs.Float64Var(&flagValues.threshold, "threshold", 0.5, "keep windows with a distance below this")
	fs.IntVar(&flagValues.jitter, "jitter", 0, "dtw only: also scan window lengths within this of the shape")
	fs.BoolVar(&flagValues.selectMatches, "select", true, "drop matches overlapping a closer one")
	fs.IntVar(&flagValues.minMatches, "min-matches", 0, "relax the threshold until this many matches remain")
	fs.Float64Var(&flagValues.relaxStep, "relax-step", 0, "threshold increase per relaxation round")
	fs.IntVar(&flagValues.maxRelaxations, "max-relaxations", 0, "cap on relaxation rounds")
	fs.IntVar(&flagValues.workers, "workers", 0, "window lengths scanned concurrently")
	fs.IntVar(&flagValues.horizon, "horizon", 12, "forecast horizon in steps")
	fs.StringVar(&flagValues.mode, "mode", "mean", "forecast aggregation: mean or weight")
	fs.StringVar(&flagValues.weigher, "weigher", "inverse", "weight mode weights: inverse, raw, uniform or decay")
	fs.IntVar(&flagValues.scenarioHorizon, "scenario-horizon", 12, "steps clustered into scenarios")
}

func applyScanFlags(fs *pflag.FlagSet) {
	set := func(name string, apply func()) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("metric", func() { cfg.Scan.Metric = flagValues.metric })
	set("threshold", func() { cfg.Scan.Threshold = flagValues.threshold })
	set("jitter", func() { cfg.Scan.Jitter = flagValues.jitter })
	set("select", func() { cfg.Scan.Select = flagValues.selectMatches })
	set("min-matches", func() { cfg.Scan.MinMatches = flagValues.minMatches })
	set("relax-step", func() { cfg.Scan.RelaxStep = flagValues.relaxStep })
	set("max-relaxations", func() { cfg.Scan.MaxRelaxations = flagValues.maxRelaxations })
	set("workers", func() { cfg.Scan.Workers = flagValues.workers })
	set("horizon", func() { cfg.Forecast.Horizon = flagValues.horizon })
	set("mode", func() { cfg.Forecast.Mode = flagValues.mode })
	set("weigher", func() { cfg.Forecast.Weigher = flagValues.weigher })
	set("scenario-horizon", func() { cfg.Scenario.Horizon = flagValues.scenarioHorizon })
}
