package feature

import (
	"gonum.org/v1/gonum/floats"
)

// Summary holds the raw-scale statistics of a matched window
type Summary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Sum float64 `json:"sum"` // scale attribute used for scenario attribution
	Len int     `json:"len"`
}

// Summarize extracts the statistics the forecaster and clusterer need from a window
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	min, max := Bounds(values)
	return Summary{
		Min: min,
		Max: max,
		Sum: floats.Sum(values),
		Len: len(values),
	}
}

// Range returns max - min
func (s Summary) Range() float64 {
	return s.Max - s.Min
}

// downsample reduces the number of samples using simple averaging.
// Used to bring drawn shapes with many points down to a target window.
func downsample(values []float64, targetLen int) []float64 {
	if targetLen <= 0 || len(values) <= targetLen {
		return values
	}

	result := make([]float64, targetLen)
	ratio := float64(len(values)) / float64(targetLen)

	for i := 0; i < targetLen; i++ {
		start := int(float64(i) * ratio)
		end := int(float64(i+1) * ratio)
		if end > len(values) {
			end = len(values)
		}
		if end <= start {
			end = start + 1
		}

		result[i] = floats.Sum(values[start:end]) / float64(end-start)
	}

	return result
}

// Resample brings a pointer-drawn curve to exactly targetLen points.
// Longer inputs are averaged down; shorter inputs are linearly interpolated.
func Resample(values []float64, targetLen int) []float64 {
	if targetLen <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) >= targetLen {
		return downsample(values, targetLen)
	}
	if len(values) == 1 {
		result := make([]float64, targetLen)
		for i := range result {
			result[i] = values[0]
		}
		return result
	}

	result := make([]float64, targetLen)
	step := float64(len(values)-1) / float64(targetLen-1)
	for i := range result {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= len(values)-1 {
			result[i] = values[len(values)-1]
			continue
		}
		frac := pos - float64(lo)
		result[i] = values[lo] + frac*(values[lo+1]-values[lo])
	}
	return result
}
