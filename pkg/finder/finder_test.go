package finder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
	"github.com/tunogya/shapecast/pkg/rerank"
	"github.com/tunogya/shapecast/pkg/window"
)

func alternating() map[string][]float64 {
	return map[string][]float64{
		"A": {0, 1, 0, 1, 0, 1, 0, 1},
		"B": {1, 0, 1, 0, 1, 0, 1, 0},
		"C": {0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
	}
}

func TestScanRisingPairs(t *testing.T) {
	f := denseFrame(t, alternating())
	fd := New(f, mustShape(t, 0, 1), WithLogger(zaptest.NewLogger(t)))

	cfg := DefaultScanConfig()
	cfg.Threshold = 0.01
	matches, err := fd.Scan(cfg)
	require.NoError(t, err)

	type hit struct {
		series string
		start  int
	}
	var got []hit
	for _, m := range matches {
		got = append(got, hit{m.Series, m.Start})
		assert.Equal(t, 0.0, m.Distance)
		assert.Equal(t, []float64{0, 1}, m.Values)
	}

	// the last pair of each series sits in the exclude set; B rises at odd
	// offsets; the flat C never gets close
	assert.Equal(t, []hit{{"A", 0}, {"A", 2}, {"A", 4}, {"B", 1}, {"B", 3}, {"B", 5}}, got)
	assert.Equal(t, f.Index[1], matches[0].EndTime)
	assert.Equal(t, matches, fd.Matches())
}

func TestEuclideanIgnoresJitter(t *testing.T) {
	assert.Equal(t, []int{5}, widths(5, ScanConfig{Metric: distance.Euclidean, Jitter: 2}))
	assert.Equal(t, []int{3, 4, 5, 6, 7}, widths(5, ScanConfig{Metric: distance.DTW, Jitter: 2}))
	assert.Equal(t, []int{1, 2, 3, 4}, widths(2, ScanConfig{Metric: distance.DTW, Jitter: 2}))

	f := denseFrame(t, alternating())
	fd := New(f, mustShape(t, 0, 1))
	cfg := DefaultScanConfig()
	cfg.Threshold = 0.01
	cfg.Jitter = 3
	matches, err := fd.Scan(cfg)
	require.NoError(t, err)
	for _, m := range matches {
		assert.Len(t, m.Values, 2)
	}
}

func roundTripSeries() []float64 {
	out := make([]float64, 40)
	for i := range out {
		out[i] = float64((i*7)%11) + 0.1*float64(i)
	}
	return out
}

func TestScanRoundTrip(t *testing.T) {
	series := roundTripSeries()
	f := denseFrame(t, map[string][]float64{"s": series})
	shape := mustShape(t, series[10:18]...)

	for _, metric := range []distance.Metric{distance.Euclidean, distance.DTW} {
		t.Run(metric.String(), func(t *testing.T) {
			fd := New(f, shape)
			matches, err := fd.Scan(ScanConfig{Metric: metric, Threshold: 100})
			require.NoError(t, err)
			require.NotEmpty(t, matches)

			best := matches[0]
			assert.Equal(t, 10, best.Start)
			assert.Equal(t, series[10:18], best.Values)
			assert.InDelta(t, 0, best.Distance, 1e-9)
		})
	}
}

func TestScanDTWJitter(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic()})
	fd := New(f, mustShape(t, 0, 1, 2, 3, 4, 5), WithWorkers(2))

	matches, err := fd.Scan(ScanConfig{Metric: distance.DTW, Threshold: 1e-9, Jitter: 1, Select: true})
	require.NoError(t, err)

	starts := make([]int, len(matches))
	for i, m := range matches {
		starts[i] = m.Start
		assert.InDelta(t, 0, m.Distance, 1e-9)
	}
	assert.Equal(t, []int{0, 10, 20, 30, 40}, starts)
}

func TestScanSeparation(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic(), "q": roundTripSeries()})
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)
	fd := New(f, shape)

	matches, err := fd.Scan(ScanConfig{Metric: distance.Euclidean, Threshold: 0.1, Select: true})
	require.NoError(t, err)

	layout := window.Assemble(f.Series, shape.Window)
	offset := map[string]int{"p": 0, "q": layout.Intervals[0]}
	for i := range matches {
		for j := i + 1; j < len(matches); j++ {
			pi := offset[matches[i].Series] + matches[i].Start
			pj := offset[matches[j].Series] + matches[j].Start
			gap := pi - pj
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, float64(gap), float64(shape.Window)/2)
		}
	}
}

func TestSeparate(t *testing.T) {
	cands := []model.Candidate{
		{Position: 0, Distance: 0},
		{Position: 1, Distance: 0.1},
		{Position: 10, Distance: 0.2},
	}
	// both members of the close pair go
	assert.Equal(t, []model.Candidate{{Position: 10, Distance: 0.2}}, separate(cands, 3))
	assert.Len(t, separate(cands, 1), 3)
	assert.Len(t, separate(cands[:1], 5), 1)
}

func TestBestPerPosition(t *testing.T) {
	cands := []model.Candidate{
		{Position: 4, Distance: 0.1, WindowLength: 5},
		{Position: 2, Distance: 0.2, WindowLength: 4},
		{Position: 4, Distance: 0.3, WindowLength: 6},
	}
	got := bestPerPosition(cands)
	assert.Equal(t, []model.Candidate{cands[0], cands[1]}, got)
}

func TestScanRelaxation(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic()})
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)

	t.Run("no step", func(t *testing.T) {
		fd := New(f, shape)
		_, err := fd.Scan(ScanConfig{Threshold: 1e-12, MinMatches: 6})
		assert.ErrorIs(t, err, ErrInsufficientMatches)
	})

	t.Run("relaxed", func(t *testing.T) {
		fd := New(f, shape)
		matches, err := fd.Scan(ScanConfig{Threshold: 1e-12, MinMatches: 6, RelaxStep: 0.05})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(matches), 6)
	})

	t.Run("bounded", func(t *testing.T) {
		fd := New(f, shape)
		_, err := fd.Scan(ScanConfig{Threshold: 0, MinMatches: 1000, RelaxStep: 1e-6, MaxRelaxations: 10})
		assert.ErrorIs(t, err, ErrInsufficientMatches)

		_, err = fd.Scan(ScanConfig{Threshold: 0, MinMatches: 1000, RelaxStep: 5})
		assert.ErrorIs(t, err, ErrInsufficientMatches)
	})

	t.Run("zero matches is insufficient", func(t *testing.T) {
		fd := New(f, shape)
		_, err := fd.Scan(ScanConfig{Threshold: 0})
		assert.ErrorIs(t, err, ErrInsufficientMatches)
	})
}

func TestScanReplacesResults(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic()})
	fd := New(f, mustShape(t, 0, 1, 2, 3, 4, 5))

	_, err := fd.Scan(ScanConfig{Threshold: 1e-12})
	require.NoError(t, err)
	_, err = fd.Forecast(2, ForecastConfig{})
	require.NoError(t, err)

	_, err = fd.Scan(ScanConfig{Threshold: 0})
	require.Error(t, err)
	assert.Empty(t, fd.Matches())
	_, err = fd.Forecast(2, ForecastConfig{})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestScanInvalidConfig(t *testing.T) {
	f := denseFrame(t, alternating())
	fd := New(f, mustShape(t, 0, 1))

	_, err := fd.Scan(ScanConfig{Threshold: 1, Jitter: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = fd.Scan(ScanConfig{Threshold: 1, RelaxStep: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(f, nil).Scan(DefaultScanConfig())
	assert.ErrorIs(t, err, model.ErrEmptyShape)
}

func TestScanCancelled(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic()})
	fd := New(f, mustShape(t, 0, 1, 2, 3, 4, 5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fd.ScanContext(ctx, DefaultScanConfig())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestScanSkipsNonFinite(t *testing.T) {
	values := periodic()
	values[2] = nan()
	f := denseFrame(t, map[string][]float64{"p": values})
	fd := New(f, mustShape(t, 0, 1, 2, 3, 4, 5))

	matches, err := fd.Scan(ScanConfig{Threshold: 1e-12, Select: true})
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, 0, m.Start)
	}
	assert.Len(t, matches, 4)
}

func TestNotFitted(t *testing.T) {
	fd := New(denseFrame(t, alternating()), mustShape(t, 0, 1))

	_, err := fd.Forecast(3, ForecastConfig{})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = fd.Continuations(3)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = fd.CreateScenarios(3, nil)
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = fd.CreateScenariosPredict(3)
	assert.ErrorIs(t, err, ErrNotFitted)
}

type recordingPlotter struct {
	calls int
	paths int
}

func (p *recordingPlotter) Plot(_ *model.Shape, paths []outcome.Path, _ *model.Forecast) error {
	p.calls++
	p.paths = len(paths)
	return nil
}

func TestForecast(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic()})
	fd := New(f, mustShape(t, 0, 1, 2, 3, 4, 5))
	_, err := fd.Scan(ScanConfig{Threshold: 1e-12, Select: true})
	require.NoError(t, err)

	plotter := &recordingPlotter{}
	for _, cfg := range []ForecastConfig{
		{Mode: model.ModeMean, Plotter: plotter},
		{Mode: model.ModeWeight},
		{Mode: model.ModeWeight, Weigher: rerank.NewTimeDecay(rerank.DefaultTimeDecayConfig())},
	} {
		fc, err := fd.Forecast(4, cfg)
		require.NoError(t, err)
		assert.Equal(t, 5, fc.Samples)
		assert.InDeltaSlice(t, []float64{0.8, 0.6, 0.4, 0.2}, fc.Predictions(), 1e-12)
		for _, s := range fc.Steps {
			assert.LessOrEqual(t, s.Lower, s.Prediction)
			assert.LessOrEqual(t, s.Prediction, s.Upper)
		}
	}
	assert.Equal(t, 1, plotter.calls)
	assert.Equal(t, 5, plotter.paths)

	fc, err := fd.Forecast(10, ForecastConfig{})
	require.NoError(t, err)
	assert.Equal(t, 4, fc.Samples)

	fc, err = fd.Forecast(45, ForecastConfig{Plotter: plotter})
	require.NoError(t, err)
	assert.True(t, fc.NoData())
	assert.Equal(t, 1, plotter.calls)

	_, err = fd.Forecast(0, ForecastConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestContinuations(t *testing.T) {
	f := denseFrame(t, map[string][]float64{"p": periodic()})
	fd := New(f, mustShape(t, 0, 1, 2, 3, 4, 5))
	_, err := fd.Scan(ScanConfig{Threshold: 1e-12})
	require.NoError(t, err)

	paths, err := fd.Continuations(3)
	require.NoError(t, err)
	require.Len(t, paths, 5)
	assert.Equal(t, []float64{4, 3, 2}, paths[0].Raw)
	assert.InDeltaSlice(t, []float64{0.8, 0.6, 0.4}, paths[0].Values, 1e-12)
}
