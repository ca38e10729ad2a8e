package milvus

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/shapecast/pkg/model"
)

func testFrame(t *testing.T) *model.Frame {
	t.Helper()
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	index := make([]time.Time, 6)
	for i := range index {
		index[i] = base.AddDate(0, 1, i)
	}
	f, err := model.NewFrame(index,
		model.Series{Name: "up", Values: []float64{1, 2, 3, 4, 5, 6}},
		model.Series{Name: "gap", Start: 1, Values: []float64{4, math.NaN(), 2, 9}},
	)
	require.NoError(t, err)
	return f
}

func TestWindowsFromFrame(t *testing.T) {
	f := testFrame(t)
	windows := WindowsFromFrame(f, 2, 1)

	// up: starts 0..3; every scannable window of gap holds the NaN
	require.Len(t, windows, 4)
	first := windows[0]
	assert.Equal(t, "up", first.Series)
	assert.Equal(t, int64(0), first.Start)
	assert.Equal(t, []float32{0, 1}, first.Embedding)
	assert.Equal(t, f.Index[1], first.TEnd)
	assert.Equal(t, int32(2), first.W)
	assert.Len(t, first.WindowID, 32)

	assert.Len(t, WindowsFromFrame(f, 2, 2), 2)
}

func TestToSegment(t *testing.T) {
	f := testFrame(t)

	seg, ok := ToSegment(f, SearchResult{Series: "up", Start: 2, W: 3, Score: 0.25})
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4, 5}, seg.Values)
	assert.Equal(t, f.Index[4], seg.EndTime)
	assert.InDelta(t, 0.25, seg.Distance, 1e-7)

	_, ok = ToSegment(f, SearchResult{Series: "up", Start: 5, W: 3})
	assert.False(t, ok)
	_, ok = ToSegment(f, SearchResult{Series: "none", W: 1})
	assert.False(t, ok)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "shape_windows_w30", CollectionName("", 30))
	assert.Equal(t, "x_w5", CollectionName("x", 5))
	assert.Equal(t, 5, DefaultCollectionConfig(5).Dimension)
	assert.Equal(t, `series in ["a", "b"]`, SeriesFilter("a", "b"))
	assert.Empty(t, SeriesFilter())
}
