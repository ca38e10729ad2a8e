package outcome

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tunogya/shapecast/pkg/feature"
	"github.com/tunogya/shapecast/pkg/model"
)

// z score of the 95% confidence half-width
const z95 = 1.96

// ErrWeightCount indicates a weight slice that does not line up with the paths
var ErrWeightCount = errors.New("outcome: one weight per path required")

// Path is what followed one matched segment
type Path struct {
	Match  model.MatchedSegment `json:"match"`
	Raw    []float64            `json:"raw"`    // next horizon observations, original scale
	Values []float64            `json:"values"` // Raw rescaled with the match's bounds
}

// Extract returns the continuation of every match with at least horizon
// observations after its end. Matches lacking the history, or followed by
// missing values, are skipped.
func Extract(frame *model.Frame, matches []model.MatchedSegment, horizon int) []Path {
	if horizon <= 0 {
		return nil
	}

	var paths []Path
	for _, m := range matches {
		s, ok := frame.Lookup(m.Series)
		if !ok || len(m.Values) == 0 {
			continue
		}

		end := frame.LastAtOrBefore(s, m.EndTime)
		if end < 0 || end+horizon >= s.Len() {
			// Not enough forward data
			continue
		}

		raw := s.Values[end+1 : end+1+horizon]
		if !feature.IsFinite(raw) {
			continue
		}
		summary := m.Summary()
		paths = append(paths, Path{
			Match:  m,
			Raw:    raw,
			Values: feature.Rescale(raw, summary.Min, summary.Max),
		})
	}
	return paths
}

// Matches returns the segments behind the paths, in path order
func Matches(paths []Path) []model.MatchedSegment {
	out := make([]model.MatchedSegment, len(paths))
	for i, p := range paths {
		out[i] = p.Match
	}
	return out
}

// Aggregate builds the forecast table from continuation paths.
// Mean mode ignores weights. Weight mode requires one weight per path; a
// zero weight total falls back to equal weights.
func Aggregate(paths []Path, horizon int, mode model.ForecastMode, weights []float64) (*model.Forecast, error) {
	f := &model.Forecast{Horizon: horizon, Mode: mode, Samples: len(paths)}
	if len(paths) == 0 {
		return f, nil
	}

	if mode == model.ModeWeight {
		if len(weights) != len(paths) {
			return nil, fmt.Errorf("%w: %d weights for %d paths", ErrWeightCount, len(weights), len(paths))
		}
		if floats.Sum(weights) <= 0 {
			weights = nil
		}
	} else {
		weights = nil
	}

	n := float64(len(paths))
	column := make([]float64, len(paths))
	f.Steps = make([]model.ForecastStep, horizon)

	for step := 0; step < horizon; step++ {
		for i, p := range paths {
			column[i] = p.Values[step]
		}

		var prediction, std float64
		if mode == model.ModeWeight {
			prediction, std = weightedMeanStd(column, weights)
		} else {
			prediction = stat.Mean(column, nil)
			if len(column) > 1 {
				std = stat.StdDev(column, nil)
			}
		}

		half := 0.0
		if len(column) > 1 && !math.IsNaN(std) {
			half = z95 * std / math.Sqrt(n)
		}

		f.Steps[step] = model.ForecastStep{
			Step:       step + 1,
			Prediction: prediction,
			Lower:      prediction - half,
			Upper:      prediction + half,
		}
	}

	return f, nil
}

// weightedMeanStd returns the weighted mean and the weighted population
// standard deviation. Nil weights are equal weights.
func weightedMeanStd(x, weights []float64) (float64, float64) {
	m := stat.Mean(x, weights)
	sqdev := make([]float64, len(x))
	for i, v := range x {
		sqdev[i] = (v - m) * (v - m)
	}
	return m, math.Sqrt(stat.Mean(sqdev, weights))
}

// Band holds the fan quantiles of one horizon step
type Band struct {
	Step      int       `json:"step"`
	Quantiles []float64 `json:"quantiles"` // same order as the requested quantiles
}

// DefaultQuantiles are the fan chart bands
var DefaultQuantiles = []float64{10, 50, 90}

// Fan computes per-step percentiles (p in 0-100) across continuation paths
func Fan(paths []Path, quantiles []float64) []Band {
	if len(paths) == 0 {
		return nil
	}
	if len(quantiles) == 0 {
		quantiles = DefaultQuantiles
	}

	horizon := len(paths[0].Values)
	bands := make([]Band, horizon)
	column := make([]float64, len(paths))

	for step := 0; step < horizon; step++ {
		for i, p := range paths {
			column[i] = p.Values[step]
		}
		sort.Float64s(column)

		q := make([]float64, len(quantiles))
		for k, p := range quantiles {
			q[k] = percentile(column, p)
		}
		bands[step] = Band{Step: step + 1, Quantiles: q}
	}
	return bands
}

// MaxDrawdown returns the largest peak-to-trough drop along a path, measured
// in the path's own units and starting from base
func MaxDrawdown(base float64, values []float64) float64 {
	peak := base
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// percentile calculates the p-th percentile (p in 0-100)
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	// Linear interpolation method
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// Summary aggregates the end points of many continuation paths
type Summary struct {
	Horizon     int
	SampleCount int
	MeanFinal   float64
	P10Final    float64
	P50Final    float64
	P90Final    float64
	MDDP95      float64
}

// Summarize aggregates paths into summary statistics of their final value and
// drawdown. base is the level every path starts from, usually the last
// template value.
func Summarize(paths []Path, base float64) Summary {
	if len(paths) == 0 {
		return Summary{}
	}

	finals := make([]float64, len(paths))
	mdds := make([]float64, len(paths))
	for i, p := range paths {
		finals[i] = p.Values[len(p.Values)-1]
		mdds[i] = MaxDrawdown(base, p.Values)
	}

	meanFinal := stat.Mean(finals, nil)
	sort.Float64s(finals)
	sort.Float64s(mdds)

	return Summary{
		Horizon:     len(paths[0].Values),
		SampleCount: len(paths),
		MeanFinal:   meanFinal,
		P10Final:    percentile(finals, 10),
		P50Final:    percentile(finals, 50),
		P90Final:    percentile(finals, 90),
		MDDP95:      percentile(mdds, 95),
	}
}

// String returns a formatted string representation
func (s Summary) String() string {
	return fmt.Sprintf(
		"Horizon: %d | Samples: %d | Mean: %.4f | P10: %.4f | P50: %.4f | P90: %.4f | MDD95: %.4f",
		s.Horizon, s.SampleCount, s.MeanFinal, s.P10Final, s.P50Final, s.P90Final, s.MDDP95,
	)
}
