package finder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
	"github.com/tunogya/shapecast/pkg/window"
)

// Covariate is a frame observed alongside the primary one. Its series are
// matched by name against the primary series, over the same trailing span.
type Covariate struct {
	Name  string
	Frame *model.Frame
	Shape *model.Shape
}

// MultiFinder requires the primary window and every covariate window ending
// at the same time to resemble their shapes. The match distance is the sum.
type MultiFinder struct {
	frame *model.Frame
	shape *model.Shape
	covs  []Covariate
	opts  options

	matches []model.MultiMatch
	fitted  bool
}

// NewMulti creates a multi-series finder
func NewMulti(frame *model.Frame, shape *model.Shape, covs []Covariate, opts ...Option) *MultiFinder {
	return &MultiFinder{
		frame: frame,
		shape: shape,
		covs:  append([]Covariate(nil), covs...),
		opts:  buildOptions(opts),
	}
}

// Matches returns the matches of the last successful scan
func (f *MultiFinder) Matches() []model.MultiMatch {
	return f.matches
}

// Scan is ScanContext with a background context
func (f *MultiFinder) Scan(cfg ScanConfig) ([]model.MultiMatch, error) {
	return f.ScanContext(context.Background(), cfg)
}

// ScanContext scores every primary window together with its aligned
// covariate windows. With cfg.Select, matches of the same series that
// overlap more than half of a better match are dropped.
func (f *MultiFinder) ScanContext(ctx context.Context, cfg ScanConfig) ([]model.MultiMatch, error) {
	f.matches = nil
	f.fitted = false

	if f.shape == nil || f.shape.Window < 1 {
		return nil, model.ErrEmptyShape
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := f.validateCovariates(cfg.Metric); err != nil {
		return nil, err
	}

	score := func(layout *window.Layout, pos int) distance.Score {
		sc := distance.Evaluate(cfg.Metric, f.shape.Values, layout.Window(pos))
		if !sc.OK() {
			return sc
		}
		s, local := f.locate(layout, pos)
		end := f.frame.TimeAt(s, local+layout.W-1)

		total := sc.Distance
		for _, cov := range f.covs {
			csc, _, _ := f.scoreCovariate(cfg.Metric, cov, s.Name, end, layout.W)
			if !csc.OK() {
				return csc
			}
			total += csc.Distance
		}
		return distance.Score{Distance: total}
	}

	pooled, stats, err := collect(ctx, f.frame.Series, widths(f.shape.Window, cfg), f.opts.workers, score)
	if err != nil {
		return nil, err
	}
	pooled = bestPerPosition(pooled)
	stats.Candidates = len(pooled)

	base := window.Assemble(f.frame.Series, f.shape.Window)
	var sel selectFunc
	if cfg.Select {
		sel = func(c []model.Candidate) []model.Candidate { return dominate(base, c) }
	}

	kept, err := relax(pooled, cfg, sel, stats)
	if err != nil {
		f.opts.logger.Info("multi scan found too few matches", append(stats.fields(), zap.Error(err))...)
		return nil, err
	}

	matches := make([]model.MultiMatch, 0, len(kept))
	for _, c := range kept {
		matches = append(matches, f.match(cfg.Metric, base, c))
	}

	f.matches = matches
	f.fitted = true
	f.opts.logger.Info("multi scan complete", append(stats.fields(),
		zap.Int("covariates", len(f.covs)),
		zap.Int("matches", len(matches)),
	)...)
	return matches, nil
}

func (f *MultiFinder) validateCovariates(metric distance.Metric) error {
	for i, cov := range f.covs {
		if cov.Frame == nil || cov.Shape == nil || cov.Shape.Window < 1 {
			return fmt.Errorf("%w: covariate %d needs a frame and a shape", ErrInvalidConfig, i)
		}
		if !metric.AllowsJitter() && cov.Shape.Window != f.shape.Window {
			return fmt.Errorf("%w: covariate %q shape has %d points, want %d",
				ErrInvalidConfig, cov.Name, cov.Shape.Window, f.shape.Window)
		}
	}
	return nil
}

func (f *MultiFinder) locate(layout *window.Layout, pos int) (*model.Series, int) {
	sIdx, local := layout.Locate(pos)
	return &f.frame.Series[sIdx], local
}

// scoreCovariate scores the n covariate observations of series name ending
// at or before end. It also returns the values and their local start.
func (f *MultiFinder) scoreCovariate(metric distance.Metric, cov Covariate, name string, end time.Time, n int) (distance.Score, []float64, int) {
	s, ok := cov.Frame.Lookup(name)
	if !ok {
		return distance.Score{Skip: distance.SkipHistory}, nil, 0
	}
	values := cov.Frame.Trailing(s, end, n)
	if len(values) != n {
		return distance.Score{Skip: distance.SkipHistory}, nil, 0
	}
	start := cov.Frame.LastAtOrBefore(s, end) + 1 - n
	return distance.Evaluate(metric, cov.Shape.Values, values), values, start
}

// match builds the primary and covariate segments of a kept candidate
func (f *MultiFinder) match(metric distance.Metric, layout *window.Layout, c model.Candidate) model.MultiMatch {
	s, local := f.locate(layout, c.Position)
	primaryValues := make([]float64, c.WindowLength)
	copy(primaryValues, s.Values[local:local+c.WindowLength])
	end := f.frame.TimeAt(s, local+c.WindowLength-1)

	covSegments := make([]model.MatchedSegment, 0, len(f.covs))
	for _, cov := range f.covs {
		sc, values, start := f.scoreCovariate(metric, cov, s.Name, end, c.WindowLength)
		cs, _ := cov.Frame.Lookup(s.Name)
		covSegments = append(covSegments, model.NewMatchedSegment(
			s.Name,
			start,
			append([]float64(nil), values...),
			sc.Distance,
			cov.Frame.TimeAt(cs, start+len(values)-1),
		))
	}

	primary := distance.Evaluate(metric, f.shape.Values, primaryValues)
	return model.MultiMatch{
		Primary:    model.NewMatchedSegment(s.Name, local, primaryValues, primary.Distance, end),
		Covariates: covSegments,
		Distance:   c.Distance,
	}
}

// dominate keeps, per series, only candidates that do not overlap more than
// half of an already kept, closer candidate of the same series. Input is in
// distance order.
func dominate(layout *window.Layout, cands []model.Candidate) []model.Candidate {
	type span struct{ from, to int }
	keptBySeries := make(map[int][]span)
	out := make([]model.Candidate, 0, len(cands))

	for _, c := range cands {
		sIdx, local := layout.Locate(c.Position)
		cur := span{local, local + c.WindowLength}

		dominated := false
		for _, k := range keptBySeries[sIdx] {
			overlap := min(cur.to, k.to) - max(cur.from, k.from)
			if float64(overlap) > float64(k.to-k.from)/2 {
				dominated = true
				break
			}
		}
		if dominated {
			continue
		}
		keptBySeries[sIdx] = append(keptBySeries[sIdx], cur)
		out = append(out, c)
	}
	return out
}

// Continuations returns the rescaled path after each primary match
func (f *MultiFinder) Continuations(horizon int) ([]outcome.Path, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive", ErrInvalidConfig)
	}
	return outcome.Extract(f.frame, f.primaries(), horizon), nil
}

// primaries returns the primary segments carrying the summed match distance
func (f *MultiFinder) primaries() []model.MatchedSegment {
	out := make([]model.MatchedSegment, len(f.matches))
	for i, m := range f.matches {
		out[i] = m.Primary
		out[i].Distance = m.Distance
	}
	return out
}

// Forecast aggregates the primary continuations of the matches
func (f *MultiFinder) Forecast(horizon int, cfg ForecastConfig) (*model.Forecast, error) {
	paths, err := f.Continuations(horizon)
	if err != nil {
		return nil, err
	}
	return forecast(f.shape, paths, horizon, cfg, f.opts.logger)
}
