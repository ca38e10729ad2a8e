package data

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/shapecast/pkg/model"
)

const wide = `time,a,b,c
2020-01-03,3,,
2020-01-01,1,,
2020-01-02,2,20,
2020-01-04,4,,
2020-01-05,,50,
`

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame(strings.NewReader(wide), "")
	require.NoError(t, err)

	require.Len(t, frame.Index, 5)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), frame.Index[0])
	assert.Equal(t, []string{"a", "b"}, frame.Names(), "blank column c is dropped")

	a, ok := frame.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 0, a.Start)
	assert.Equal(t, []float64{1, 2, 3, 4}, a.Values, "rows are ordered by time")

	b, ok := frame.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 1, b.Start)
	require.Len(t, b.Values, 4)
	assert.Equal(t, 20.0, b.Values[0])
	assert.True(t, math.IsNaN(b.Values[1]))
	assert.True(t, math.IsNaN(b.Values[2]))
	assert.Equal(t, 50.0, b.Values[3])
}

func TestParseFrameTimeFormats(t *testing.T) {
	frame, err := ParseFrame(strings.NewReader("open_time,x\n1577836800000,1\n1577923200000,2\n"), "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), frame.Index[0])

	frame, err = ParseFrame(strings.NewReader("t,x\n01/02/2020,1\n"), "01/02/2006")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), frame.Index[0])
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no header", ""},
		{"no series", "time\n2020-01-01\n"},
		{"only blank series", "time,a\n2020-01-01,\n"},
		{"bad time", "time,a\nyesterday,1\n"},
		{"bad value", "time,a\n2020-01-01,one\n"},
		{"duplicate time", "time,a\n2020-01-01,1\n2020-01-01,2\n"},
		{"duplicate series", "time,a,a\n2020-01-01,1,2\n"},
		{"ragged row", "time,a\n2020-01-01,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(strings.NewReader(tt.input), "")
			assert.Error(t, err)
		})
	}
}

func TestWriteFrameRoundTrip(t *testing.T) {
	frame, err := ParseFrame(strings.NewReader(wide), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, frame, ""))
	assert.True(t, strings.HasPrefix(buf.String(), "time,a,b\n2020-01-01T00:00:00Z,1,\n"))

	again, err := ParseFrame(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, frame.Index, again.Index)
	assert.Equal(t, frame.Names(), again.Names())

	b, _ := again.Lookup("b")
	assert.Equal(t, 1, b.Start)
	assert.Len(t, b.Values, 4)
}

func TestCSVProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(wide), 0644))

	p := NewCSVProvider(path, "")
	frame, err := p.LoadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, frame.Names())

	only, err := p.LoadFrame(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, only.Names())
	assert.Equal(t, frame.Index, only.Index)

	_, err = p.LoadFrame(context.Background(), "zzz")
	assert.ErrorIs(t, err, model.ErrUnknownSeries)

	_, err = NewCSVProvider(filepath.Join(t.TempDir(), "missing.csv"), "").LoadFrame(context.Background())
	assert.ErrorContains(t, err, "failed to open CSV file")
}

func TestMemoryProvider(t *testing.T) {
	index := []time.Time{time.Unix(0, 0), time.Unix(60, 0)}
	frame, err := model.NewDenseFrame(index, map[string][]float64{"x": {1, 2}, "y": {3, 4}})
	require.NoError(t, err)

	p := NewMemoryProvider(frame)
	got, err := p.LoadFrame(context.Background())
	require.NoError(t, err)
	assert.Same(t, frame, got)

	got, err = p.LoadFrame(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, got.Names())

	_, err = NewMemoryProvider(nil).LoadFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoSeries)
}
