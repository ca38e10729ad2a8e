package finder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/window"
)

func TestMultiScan(t *testing.T) {
	primary := denseFrame(t, map[string][]float64{"x": periodic()})
	cov := denseFrame(t, map[string][]float64{"x": periodic()})
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)

	mf := NewMulti(primary, shape, []Covariate{{Name: "volume", Frame: cov, Shape: shape}})
	matches, err := mf.Scan(ScanConfig{Threshold: 1e-12, Select: true})
	require.NoError(t, err)
	require.Len(t, matches, 5)

	for i, m := range matches {
		assert.Equal(t, 10*i, m.Primary.Start)
		assert.Equal(t, 0.0, m.Distance)
		require.Len(t, m.Covariates, 1)
		c := m.Covariates[0]
		assert.Equal(t, m.Primary.Values, c.Values)
		assert.Equal(t, m.Primary.EndTime, c.EndTime)
		assert.Equal(t, m.Primary.Start, c.Start)
	}
	assert.Equal(t, matches, mf.Matches())
}

func TestMultiScanSumsDistances(t *testing.T) {
	primary := denseFrame(t, map[string][]float64{"x": periodic()})
	cov := denseFrame(t, map[string][]float64{"x": periodic()})
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)
	falling := mustShape(t, 5, 4, 3, 2, 1, 0)

	mf := NewMulti(primary, shape, []Covariate{{Frame: cov, Shape: falling}})
	matches, err := mf.Scan(ScanConfig{Threshold: 100, Select: true})
	require.NoError(t, err)
	for _, m := range matches {
		assert.InDelta(t, m.Primary.Distance+m.Covariates[0].Distance, m.Distance, 1e-12)
	}
}

func TestMultiScanRequiresCovariateHistory(t *testing.T) {
	index := dailyIndex(50)
	primary, err := model.NewFrame(index, model.Series{Name: "x", Values: periodic()})
	require.NoError(t, err)
	// the covariate starts at index 12
	cov, err := model.NewFrame(index, model.Series{Name: "x", Start: 12, Values: periodic()[12:]})
	require.NoError(t, err)
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)

	mf := NewMulti(primary, shape, []Covariate{{Frame: cov, Shape: shape}})
	matches, err := mf.Scan(ScanConfig{Threshold: 1e-12, Select: true})
	require.NoError(t, err)

	var starts []int
	for _, m := range matches {
		starts = append(starts, m.Primary.Start)
		// covariate offsets are local to the covariate series
		assert.Equal(t, m.Primary.Start-12, m.Covariates[0].Start)
	}
	assert.Equal(t, []int{20, 30, 40}, starts)

	// a covariate without the series never agrees
	other := denseFrame(t, map[string][]float64{"y": periodic()})
	mf = NewMulti(primary, shape, []Covariate{{Frame: other, Shape: shape}})
	_, err = mf.Scan(ScanConfig{Threshold: 1e-12})
	assert.ErrorIs(t, err, ErrInsufficientMatches)
}

func TestMultiScanValidation(t *testing.T) {
	primary := denseFrame(t, map[string][]float64{"x": periodic()})
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)

	mf := NewMulti(primary, shape, []Covariate{{Frame: primary, Shape: mustShape(t, 0, 1)}})
	_, err := mf.Scan(ScanConfig{Metric: distance.Euclidean, Threshold: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	mf = NewMulti(primary, shape, []Covariate{{Shape: shape}})
	_, err = mf.Scan(ScanConfig{Threshold: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = mf.Forecast(3, ForecastConfig{})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestDominate(t *testing.T) {
	series := []model.Series{
		{Name: "a", Values: make([]float64, 30)},
		{Name: "b", Values: make([]float64, 30)},
	}
	layout := window.Assemble(series, 6)

	cands := []model.Candidate{
		{Position: 0, Distance: 0, WindowLength: 6},
		{Position: 2, Distance: 0.1, WindowLength: 6},  // overlaps 4 of 6
		{Position: 3, Distance: 0.2, WindowLength: 6},  // overlaps exactly half
		{Position: 30, Distance: 0.3, WindowLength: 6}, // other series
		{Position: 12, Distance: 0.4, WindowLength: 6},
	}
	got := dominate(layout, cands)

	var positions []int
	for _, c := range got {
		positions = append(positions, c.Position)
	}
	assert.Equal(t, []int{0, 3, 30, 12}, positions)
}

func TestMultiForecast(t *testing.T) {
	primary := denseFrame(t, map[string][]float64{"x": periodic()})
	shape := mustShape(t, 0, 1, 2, 3, 4, 5)
	mf := NewMulti(primary, shape, []Covariate{{Frame: primary, Shape: shape}})

	_, err := mf.Scan(ScanConfig{Threshold: 1e-12, Select: true})
	require.NoError(t, err)

	fc, err := mf.Forecast(4, ForecastConfig{Mode: model.ModeWeight})
	require.NoError(t, err)
	assert.Equal(t, 5, fc.Samples)
	assert.InDeltaSlice(t, []float64{0.8, 0.6, 0.4, 0.2}, fc.Predictions(), 1e-12)

	paths, err := mf.Continuations(2)
	require.NoError(t, err)
	assert.Len(t, paths, 5)
}
