package feature

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Midpoint is the value every element of a zero-range window maps to
const Midpoint = 0.5

// Bounds returns the minimum and maximum of values.
// Both are NaN for an empty slice.
func Bounds(values []float64) (min, max float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(values), floats.Max(values)
}

// MinMaxNormalize scales values to the [0, 1] range.
// A window without range cannot be scaled and maps to Midpoint everywhere;
// the returned flag reports whether that substitution happened.
func MinMaxNormalize(values []float64) ([]float64, bool) {
	if len(values) == 0 {
		return nil, false
	}

	min, max := Bounds(values)
	result := make([]float64, len(values))

	if max-min == 0 {
		for i := range result {
			result[i] = Midpoint
		}
		return result, true
	}

	for i, v := range values {
		result[i] = (v - min) / (max - min)
	}
	return result, false
}

// Rescale maps values onto the scale defined by an earlier window's bounds.
// Forecast continuations use the bounds of the matched window, not their own,
// so match and continuation stay comparable. A zero range shifts values so the
// window level sits at Midpoint.
func Rescale(values []float64, min, max float64) []float64 {
	result := make([]float64, len(values))
	rangeVal := max - min
	for i, v := range values {
		if rangeVal == 0 {
			result[i] = v - min + Midpoint
			continue
		}
		result[i] = (v - min) / rangeVal
	}
	return result
}

// IsFinite reports whether every value is neither NaN nor infinite
func IsFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
