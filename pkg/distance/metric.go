package distance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tunogya/shapecast/pkg/feature"
)

var (
	// ErrLengthMismatch indicates a lock-step metric applied to sequences of unequal length
	ErrLengthMismatch = errors.New("distance: sequences must have equal length")

	// ErrEmptySequence indicates a distance between empty sequences
	ErrEmptySequence = errors.New("distance: empty sequence")
)

// Metric is the closed set of window distances
type Metric int

const (
	// Euclidean is the sum of squared pointwise differences
	Euclidean Metric = iota
	// DTW is the dynamic time warping distance, tolerant of unequal lengths
	DTW
)

// String returns the metric name
func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case DTW:
		return "dtw"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// ParseMetric parses a metric name
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclidean", "":
		return Euclidean, nil
	case "dtw":
		return DTW, nil
	default:
		return Euclidean, fmt.Errorf("unknown metric %q", s)
	}
}

// AllowsJitter reports whether the metric can compare windows of another length
func (m Metric) AllowsJitter() bool {
	return m == DTW
}

// Distance computes the distance between two sequences
func (m Metric) Distance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptySequence
	}

	switch m {
	case Euclidean:
		if len(a) != len(b) {
			return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
		}
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum, nil
	case DTW:
		return dtw(a, b), nil
	default:
		return 0, fmt.Errorf("unknown metric %d", int(m))
	}
}

// SkipReason says why a window was not scored
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipNonFinite
	SkipMetric
	SkipHistory // an aligned window lacks history
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipNonFinite:
		return "non-finite"
	case SkipMetric:
		return "metric"
	case SkipHistory:
		return "history"
	default:
		return "unknown"
	}
}

// Score is the outcome of scoring one window
type Score struct {
	Distance float64
	Skip     SkipReason
	Min, Max float64 // raw bounds used to normalize the window
}

// OK reports whether the window produced a usable distance
func (s Score) OK() bool {
	return s.Skip == SkipNone
}

// Evaluate normalizes a raw window and scores it against the template.
// Constant windows map to the midpoint and are scored normally.
func Evaluate(m Metric, template, window []float64) Score {
	if !feature.IsFinite(window) {
		return Score{Skip: SkipNonFinite}
	}

	lo, hi := feature.Bounds(window)
	normalized, _ := feature.MinMaxNormalize(window)

	d, err := m.Distance(template, normalized)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) {
		return Score{Skip: SkipMetric, Min: lo, Max: hi}
	}
	return Score{Distance: d, Min: lo, Max: hi}
}
