package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrUnsortedIndex indicates a time index that is not strictly increasing
	ErrUnsortedIndex = errors.New("model: time index must be strictly increasing")

	// ErrSeriesOutOfRange indicates a series extending past the time index
	ErrSeriesOutOfRange = errors.New("model: series extends past the time index")

	// ErrDuplicateSeries indicates two series sharing a name
	ErrDuplicateSeries = errors.New("model: duplicate series name")

	// ErrUnknownSeries indicates a lookup of a series the frame does not hold
	ErrUnknownSeries = errors.New("model: unknown series")
)

// Series is one named column of a Frame.
// Values[0] is observed at Frame.Index[Start]; a series may start late or end
// early relative to the shared index.
type Series struct {
	Name   string    `json:"name"`
	Start  int       `json:"start"`
	Values []float64 `json:"values"`
}

// Len returns the number of observations
func (s *Series) Len() int {
	return len(s.Values)
}

// End returns the exclusive index offset of the last observation
func (s *Series) End() int {
	return s.Start + len(s.Values)
}

// Frame is a set of named series sharing one time index
type Frame struct {
	Index  []time.Time `json:"index"`
	Series []Series    `json:"series"`

	byName map[string]int
}

// NewFrame validates the series against the index and builds the name lookup
func NewFrame(index []time.Time, series ...Series) (*Frame, error) {
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return nil, fmt.Errorf("%w: position %d", ErrUnsortedIndex, i)
		}
	}

	f := &Frame{
		Index:  index,
		Series: series,
		byName: make(map[string]int, len(series)),
	}

	for i := range series {
		s := &series[i]
		if s.Start < 0 || s.End() > len(index) {
			return nil, fmt.Errorf("%w: %s", ErrSeriesOutOfRange, s.Name)
		}
		if _, dup := f.byName[s.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSeries, s.Name)
		}
		f.byName[s.Name] = i
	}

	return f, nil
}

// NewDenseFrame builds a frame whose series all cover the full index
func NewDenseFrame(index []time.Time, columns map[string][]float64) (*Frame, error) {
	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]Series, 0, len(names))
	for _, name := range names {
		series = append(series, Series{Name: name, Values: columns[name]})
	}
	return NewFrame(index, series...)
}

// Lookup returns the series with the given name
func (f *Frame) Lookup(name string) (*Series, bool) {
	i, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	return &f.Series[i], true
}

// Names returns series names in frame order
func (f *Frame) Names() []string {
	names := make([]string, len(f.Series))
	for i, s := range f.Series {
		names[i] = s.Name
	}
	return names
}

// TimeAt returns the timestamp of a series' local observation
func (f *Frame) TimeAt(s *Series, local int) time.Time {
	return f.Index[s.Start+local]
}

// LastAtOrBefore returns the local offset of the last observation of s
// observed at or before t, or -1 when s has no such observation.
func (f *Frame) LastAtOrBefore(s *Series, t time.Time) int {
	// first index position strictly after t
	pos := sort.Search(len(f.Index), func(i int) bool {
		return f.Index[i].After(t)
	})
	local := pos - 1 - s.Start
	if local < 0 {
		return -1
	}
	if local >= s.Len() {
		local = s.Len() - 1
	}
	return local
}

// Trailing returns the n observations of s ending at or before t.
// The result is shorter than n when s lacks the history.
func (f *Frame) Trailing(s *Series, t time.Time, n int) []float64 {
	end := f.LastAtOrBefore(s, t)
	if end < 0 || n <= 0 {
		return nil
	}
	start := end + 1 - n
	if start < 0 {
		start = 0
	}
	return s.Values[start : end+1]
}
