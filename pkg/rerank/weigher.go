package rerank

import (
	"fmt"
	"strings"

	"github.com/tunogya/shapecast/pkg/model"
)

// epsilon keeps exact matches from dividing by zero
const epsilon = 1e-9

// Weigher assigns one forecast weight per matched segment
type Weigher interface {
	Weights(matches []model.MatchedSegment) []float64
}

// WeigherFunc adapts a function to Weigher
type WeigherFunc func(matches []model.MatchedSegment) []float64

// Weights implements Weigher
func (f WeigherFunc) Weights(matches []model.MatchedSegment) []float64 {
	return f(matches)
}

// InverseDistance weights each match by 1/(distance+epsilon), so closer
// matches count more.
var InverseDistance Weigher = WeigherFunc(func(matches []model.MatchedSegment) []float64 {
	w := make([]float64, len(matches))
	for i, m := range matches {
		w[i] = inverse(m.Distance)
	}
	return w
})

// Raw uses the distance itself as the weight
var Raw Weigher = WeigherFunc(func(matches []model.MatchedSegment) []float64 {
	w := make([]float64, len(matches))
	for i, m := range matches {
		w[i] = m.Distance
	}
	return w
})

// Uniform gives every match the same weight
var Uniform Weigher = WeigherFunc(func(matches []model.MatchedSegment) []float64 {
	w := make([]float64, len(matches))
	for i := range w {
		w[i] = 1
	}
	return w
})

func inverse(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (d + epsilon)
}

// Parse resolves a weigher name: inverse, raw, uniform, decay
func Parse(name string) (Weigher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "inverse", "":
		return InverseDistance, nil
	case "raw":
		return Raw, nil
	case "uniform":
		return Uniform, nil
	case "decay":
		return NewTimeDecay(DefaultTimeDecayConfig()), nil
	default:
		return nil, fmt.Errorf("unknown weigher %q", name)
	}
}
