// Package finder locates windows of a series frame that resemble a shape and
// summarizes what followed them.
//
// A Finder owns the results of its last successful scan. Every Scan replaces
// them; forecasting and clustering read them and fail with ErrNotFitted until
// a scan succeeds. A Finder is not safe for concurrent use.
package finder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
	"github.com/tunogya/shapecast/pkg/rerank"
	"github.com/tunogya/shapecast/pkg/window"
)

// Finder matches one shape against every series of a frame
type Finder struct {
	frame *model.Frame
	shape *model.Shape
	opts  options

	matches   []model.MatchedSegment
	fitted    bool
	scenarios []model.ScenarioCluster
}

// New creates a finder over frame for shape
func New(frame *model.Frame, shape *model.Shape, opts ...Option) *Finder {
	return &Finder{
		frame: frame,
		shape: shape,
		opts:  buildOptions(opts),
	}
}

// Shape returns the template being searched for
func (f *Finder) Shape() *model.Shape {
	return f.shape
}

// SetShape replaces the template and discards previous results
func (f *Finder) SetShape(shape *model.Shape) {
	f.shape = shape
	f.reset()
}

// Matches returns the segments of the last successful scan
func (f *Finder) Matches() []model.MatchedSegment {
	return f.matches
}

// Scenarios returns the clusters of the last CreateScenarios call
func (f *Finder) Scenarios() []model.ScenarioCluster {
	return f.scenarios
}

func (f *Finder) reset() {
	f.matches = nil
	f.fitted = false
	f.scenarios = nil
}

// Scan is ScanContext with a background context
func (f *Finder) Scan(cfg ScanConfig) ([]model.MatchedSegment, error) {
	return f.ScanContext(context.Background(), cfg)
}

// ScanContext scores every window of the frame against the shape, selects
// the matches and stores them. A failed scan clears earlier results.
func (f *Finder) ScanContext(ctx context.Context, cfg ScanConfig) ([]model.MatchedSegment, error) {
	f.reset()

	if f.shape == nil || f.shape.Window < 1 {
		return nil, model.ErrEmptyShape
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Jitter > 0 && !cfg.Metric.AllowsJitter() {
		f.opts.logger.Debug("jitter ignored for metric", zap.Stringer("metric", cfg.Metric), zap.Int("jitter", cfg.Jitter))
	}

	template := f.shape.Values
	score := func(layout *window.Layout, pos int) distance.Score {
		return distance.Evaluate(cfg.Metric, template, layout.Window(pos))
	}

	pooled, stats, err := collect(ctx, f.frame.Series, widths(f.shape.Window, cfg), f.opts.workers, score)
	if err != nil {
		return nil, err
	}
	pooled = bestPerPosition(pooled)
	stats.Candidates = len(pooled)

	var sel selectFunc
	if cfg.Select {
		minGap := float64(f.shape.Window) / 2
		sel = func(c []model.Candidate) []model.Candidate { return separate(c, minGap) }
	}

	kept, err := relax(pooled, cfg, sel, stats)
	if err != nil {
		f.opts.logger.Info("scan found too few matches", append(stats.fields(), zap.Error(err))...)
		return nil, err
	}

	layout := window.Assemble(f.frame.Series, f.shape.Window)
	matches := make([]model.MatchedSegment, 0, len(kept))
	for _, c := range kept {
		matches = append(matches, f.segment(layout, c))
	}

	f.matches = matches
	f.fitted = true
	f.opts.logger.Info("scan complete", append(stats.fields(), zap.Int("matches", len(matches)))...)
	return matches, nil
}

// segment slices the original values of a candidate. Series offsets do not
// depend on the window length, so any layout of the frame locates it.
func (f *Finder) segment(layout *window.Layout, c model.Candidate) model.MatchedSegment {
	sIdx, local := layout.Locate(c.Position)
	s := &f.frame.Series[sIdx]

	values := make([]float64, c.WindowLength)
	copy(values, s.Values[local:local+c.WindowLength])

	return model.NewMatchedSegment(s.Name, local, values, c.Distance, f.frame.TimeAt(s, local+c.WindowLength-1))
}

// Continuations returns the rescaled path that followed each match with
// enough history
func (f *Finder) Continuations(horizon int) ([]outcome.Path, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive", ErrInvalidConfig)
	}
	return outcome.Extract(f.frame, f.matches, horizon), nil
}

// Forecast aggregates the continuations of the matches into a forecast
// table. A forecast without usable continuations reports NoData.
func (f *Finder) Forecast(horizon int, cfg ForecastConfig) (*model.Forecast, error) {
	paths, err := f.Continuations(horizon)
	if err != nil {
		return nil, err
	}
	return forecast(f.shape, paths, horizon, cfg, f.opts.logger)
}

func forecast(shape *model.Shape, paths []outcome.Path, horizon int, cfg ForecastConfig, logger *zap.Logger) (*model.Forecast, error) {
	var weights []float64
	if cfg.Mode == model.ModeWeight {
		weigher := cfg.Weigher
		if weigher == nil {
			weigher = rerank.InverseDistance
		}
		weights = weigher.Weights(outcome.Matches(paths))
	}

	fc, err := outcome.Aggregate(paths, horizon, cfg.Mode, weights)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate forecast: %w", err)
	}
	logger.Info("forecast",
		zap.Int("horizon", horizon),
		zap.Stringer("mode", cfg.Mode),
		zap.Int("samples", fc.Samples),
	)

	if cfg.Plotter != nil && !fc.NoData() {
		if err := cfg.Plotter.Plot(shape, paths, fc); err != nil {
			return fc, fmt.Errorf("failed to plot forecast: %w", err)
		}
	}
	return fc, nil
}
