package duckdb

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/model"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient("")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, InitializeSchema(context.Background(), client))
	return client
}

func testIndex(n int) []time.Time {
	base := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	index := make([]time.Time, n)
	for i := range index {
		index[i] = base.AddDate(0, 0, i)
	}
	return index
}

func TestObservationRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewObservationRepo(newTestClient(t))

	frame, err := model.NewFrame(testIndex(5),
		model.Series{Name: "a", Values: []float64{1, 2, math.NaN(), 4, 5}},
		model.Series{Name: "b", Start: 2, Values: []float64{30, 40}},
	)
	require.NoError(t, err)

	written, err := repo.InsertFrame(ctx, frame)
	require.NoError(t, err)
	assert.Equal(t, 6, written, "NaN is not stored")

	// upserts overwrite
	_, err = repo.InsertFrame(ctx, frame)
	require.NoError(t, err)
	count, err := repo.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)
	count, err = repo.Count(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	names, err := repo.Series(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	loaded, err := repo.LoadFrame(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Index, 5)
	for i := range frame.Index {
		assert.True(t, frame.Index[i].Equal(loaded.Index[i]))
	}

	a, ok := loaded.Lookup("a")
	require.True(t, ok)
	require.Len(t, a.Values, 5)
	assert.True(t, math.IsNaN(a.Values[2]))
	assert.Equal(t, 5.0, a.Values[4])

	b, ok := loaded.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 2, b.Start)
	assert.Equal(t, []float64{30, 40}, b.Values)
}

func TestObservationLoadSubset(t *testing.T) {
	ctx := context.Background()
	repo := NewObservationRepo(newTestClient(t))

	_, err := repo.LoadFrame(ctx)
	assert.ErrorIs(t, err, data.ErrNoSeries)

	frame, err := model.NewDenseFrame(testIndex(3), map[string][]float64{
		"x": {1, 2, 3},
		"y": {4, 5, 6},
		"z": {7, 8, 9},
	})
	require.NoError(t, err)
	_, err = repo.InsertFrame(ctx, frame)
	require.NoError(t, err)

	sub, err := repo.LoadFrame(ctx, "z", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x"}, sub.Names())

	_, err = repo.LoadFrame(ctx, "x", "missing")
	assert.ErrorIs(t, err, model.ErrUnknownSeries)
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(newTestClient(t))

	end := time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC)
	run := &Run{
		ID:        "run-1",
		Shape:     []float64{0, 0.5, 1},
		Metric:    "euclidean",
		Threshold: 0.5,
		CreatedAt: end,
		Matches: []model.MatchedSegment{
			model.NewMatchedSegment("b", 4, []float64{3, 4, 5}, 0.2, end),
			model.NewMatchedSegment("a", 0, []float64{1, 2, 3}, 0.1, end.AddDate(0, 0, -4)),
		},
		Forecast: &model.Forecast{
			Horizon: 2,
			Mode:    model.ModeWeight,
			Samples: 2,
			Steps: []model.ForecastStep{
				{Step: 1, Prediction: 1.1, Lower: 0.9, Upper: 1.3},
				{Step: 2, Prediction: 1.2, Lower: 1.0, Upper: 1.4},
			},
		},
		Scenarios: []model.ScenarioCluster{
			{ID: 0, Trajectory: []float64{1.1, 1.2}, Probability: 1, Members: []model.ScenarioMember{
				{Series: "a", EndTime: end, Distance: 0.1, Decade: model.Decade2020s},
			}},
		},
	}
	require.NoError(t, repo.Save(ctx, run))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Shape, got.Shape)
	assert.Equal(t, run.Metric, got.Metric)
	assert.True(t, end.Equal(got.CreatedAt))

	require.Len(t, got.Matches, 2)
	assert.Equal(t, "b", got.Matches[0].Series, "matches keep their rank")
	assert.Equal(t, run.Matches[0].ID, got.Matches[0].ID)
	assert.Equal(t, []float64{3, 4, 5}, got.Matches[0].Values)
	assert.Equal(t, 4, got.Matches[0].Start)

	assert.Equal(t, model.ModeWeight, got.Forecast.Mode)
	assert.Equal(t, run.Forecast.Steps, got.Forecast.Steps)
	assert.Equal(t, 2, got.Forecast.Samples)

	require.Len(t, got.Scenarios, 1)
	assert.Equal(t, run.Scenarios[0].Trajectory, got.Scenarios[0].Trajectory)
	require.Len(t, got.Scenarios[0].Members, 1)
	assert.Equal(t, model.Decade2020s, got.Scenarios[0].Members[0].Decade)

	// saving again replaces the run
	run.Matches = run.Matches[:1]
	run.Scenarios = nil
	require.NoError(t, repo.Save(ctx, run))
	got, err = repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, got.Matches, 1)
	assert.Empty(t, got.Scenarios)

	ids, err := repo.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDropAllTables(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	require.NoError(t, DropAllTables(ctx, client))
	require.NoError(t, InitializeSchema(ctx, client))
}
