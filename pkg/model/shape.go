package model

import (
	"errors"
	"math/rand/v2"

	"github.com/tunogya/shapecast/pkg/feature"
)

// ErrEmptyShape indicates a template without points
var ErrEmptyShape = errors.New("model: shape must have at least one point")

// Shape is the normalized reference curve being searched for
type Shape struct {
	Values []float64 `json:"values"` // in [0, 1], or all 0.5 for a flat input
	Window int       `json:"window"`
}

// NewShape normalizes values into a template.
// Callers need not pre-normalize.
func NewShape(values []float64) (*Shape, error) {
	if len(values) == 0 {
		return nil, ErrEmptyShape
	}
	if !feature.IsFinite(values) {
		return nil, errors.New("model: shape values must be finite")
	}

	normalized, _ := feature.MinMaxNormalize(values)
	return &Shape{
		Values: normalized,
		Window: len(normalized),
	}, nil
}

// DrawnShape builds a template from pointer input, resampled to window points
func DrawnShape(points []float64, window int) (*Shape, error) {
	if window <= 0 {
		return nil, ErrEmptyShape
	}
	return NewShape(feature.Resample(points, window))
}

// RandomShape draws a uniform random template of the given window.
// A nil rng uses the global source.
func RandomShape(window int, rng *rand.Rand) (*Shape, error) {
	if window <= 0 {
		return nil, ErrEmptyShape
	}

	values := make([]float64, window)
	for i := range values {
		if rng != nil {
			values[i] = rng.Float64()
		} else {
			values[i] = rand.Float64()
		}
	}
	return NewShape(values)
}

// Last returns the final template value, the anchor of forecast plots
func (s *Shape) Last() float64 {
	return s.Values[len(s.Values)-1]
}
