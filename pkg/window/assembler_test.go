package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/shapecast/pkg/model"
)

func makeSeries(lengths ...int) []model.Series {
	series := make([]model.Series, len(lengths))
	v := 0.0
	for i, n := range lengths {
		values := make([]float64, n)
		for j := range values {
			values[j] = v
			v++
		}
		series[i] = model.Series{Name: string(rune('a' + i)), Values: values}
	}
	return series
}

func TestAssemble(t *testing.T) {
	l := Assemble(makeSeries(4, 3), 2)

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, l.Buffer)
	assert.Equal(t, []int{4, 7}, l.Intervals)
	assert.Equal(t, []string{"a", "b"}, l.Names)
	assert.Equal(t, []int{2, 3, 5, 6}, l.ExcludeSet())
	assert.Equal(t, []int{0, 1, 4}, l.Starts())
	assert.Equal(t, []float64{4, 5}, l.Window(4))
}

func TestAssembleShortSeries(t *testing.T) {
	// a series shorter than the window excludes all of its indices
	l := Assemble(makeSeries(2, 5), 3)
	assert.Equal(t, []int{0, 1, 4, 5, 6}, l.ExcludeSet())
	assert.Equal(t, []int{2, 3}, l.Starts())
}

func TestExcludeSetProperty(t *testing.T) {
	for _, lengths := range [][]int{{8, 8, 8}, {1, 10, 3}, {5}, {3, 0, 7}} {
		for w := 1; w <= 6; w++ {
			series := makeSeries(lengths...)
			l := Assemble(series, w)

			want := map[int]bool{}
			to := 0
			for _, n := range lengths {
				to += n
				for j := max(to-w, 0); j < to; j++ {
					want[j] = true
				}
			}
			for i := range l.Buffer {
				assert.Equal(t, want[i], l.Excluded(i), "lengths=%v w=%d i=%d", lengths, w, i)
			}

			for _, start := range l.Starts() {
				s0, _ := l.Locate(start)
				s1, _ := l.Locate(start + w - 1)
				require.Equal(t, s0, s1, "window at %d crosses a boundary", start)
			}
		}
	}
}

func TestLocate(t *testing.T) {
	l := Assemble(makeSeries(4, 3), 2)

	s, local := l.Locate(0)
	assert.Equal(t, 0, s)
	assert.Equal(t, 0, local)

	s, local = l.Locate(3)
	assert.Equal(t, 0, s)
	assert.Equal(t, 3, local)

	s, local = l.Locate(5)
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, local)

	s, _ = l.Locate(7)
	assert.Equal(t, -1, s)
	assert.True(t, l.Excluded(-1))
}
