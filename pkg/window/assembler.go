package window

import (
	"sort"

	"github.com/tunogya/shapecast/pkg/model"
)

// Layout is the flat test buffer assembled from a set of series for one
// window length. Recompute it whenever the window length changes.
type Layout struct {
	Buffer    []float64
	Intervals []int    // cumulative end offset of each series in Buffer
	Names     []string // series names in buffer order
	W         int      // window length the exclude set was built for

	exclude []bool
}

// Assemble concatenates the series values in order and marks, for every series
// ending at cumulative offset to, the start indices [to-w, to) as excluded.
func Assemble(series []model.Series, w int) *Layout {
	total := 0
	for i := range series {
		total += series[i].Len()
	}

	l := &Layout{
		Buffer:    make([]float64, 0, total),
		Intervals: make([]int, 0, len(series)),
		Names:     make([]string, 0, len(series)),
		W:         w,
		exclude:   make([]bool, total),
	}

	for i := range series {
		l.Buffer = append(l.Buffer, series[i].Values...)
		to := len(l.Buffer)
		l.Intervals = append(l.Intervals, to)
		l.Names = append(l.Names, series[i].Name)

		for j := max(to-w, 0); j < to; j++ {
			l.exclude[j] = true
		}
	}

	return l
}

// Excluded reports whether a window starting at i is not scanned
func (l *Layout) Excluded(i int) bool {
	if i < 0 || i >= len(l.exclude) {
		return true
	}
	return l.exclude[i]
}

// ExcludeSet returns the excluded start indices in ascending order
func (l *Layout) ExcludeSet() []int {
	var out []int
	for i, ex := range l.exclude {
		if ex {
			out = append(out, i)
		}
	}
	return out
}

// Starts returns every start index a scan visits
func (l *Layout) Starts() []int {
	var out []int
	for i := 0; i+l.W <= len(l.Buffer); i++ {
		if !l.exclude[i] {
			out = append(out, i)
		}
	}
	return out
}

// Window returns the buffer slice starting at i. The slice aliases Buffer.
func (l *Layout) Window(i int) []float64 {
	return l.Buffer[i : i+l.W]
}

// Locate maps a buffer position to its series and local offset.
// Returns -1 for positions outside the buffer.
func (l *Layout) Locate(pos int) (seriesIdx, local int) {
	if pos < 0 || pos >= len(l.Buffer) {
		return -1, -1
	}
	seriesIdx = sort.Search(len(l.Intervals), func(i int) bool {
		return l.Intervals[i] > pos
	})
	from := 0
	if seriesIdx > 0 {
		from = l.Intervals[seriesIdx-1]
	}
	return seriesIdx, pos - from
}
