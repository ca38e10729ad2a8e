package model

import (
	"fmt"
	"strings"
)

// ForecastMode selects how continuations are aggregated
type ForecastMode int

const (
	// ModeMean is the unweighted sample mean
	ModeMean ForecastMode = iota
	// ModeWeight weights each continuation by a caller-supplied weight
	ModeWeight
)

// String returns the mode name
func (m ForecastMode) String() string {
	switch m {
	case ModeMean:
		return "mean"
	case ModeWeight:
		return "weight"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseForecastMode parses "mean" or "weight"
func ParseForecastMode(s string) (ForecastMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mean", "":
		return ModeMean, nil
	case "weight", "weighted":
		return ModeWeight, nil
	default:
		return ModeMean, fmt.Errorf("unknown forecast mode %q", s)
	}
}

// ForecastStep is one row of the forecast table
type ForecastStep struct {
	Step       int     `json:"step"` // 1-based horizon step
	Prediction float64 `json:"prediction"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
}

// Forecast is the aggregated continuation table indexed by horizon step
type Forecast struct {
	Horizon int            `json:"horizon"`
	Mode    ForecastMode   `json:"mode"`
	Samples int            `json:"samples"` // continuations that contributed
	Steps   []ForecastStep `json:"steps"`
}

// NoData reports that no matched segment had enough history to forecast
func (f *Forecast) NoData() bool {
	return f == nil || f.Samples == 0
}

// Predictions returns the prediction column
func (f *Forecast) Predictions() []float64 {
	out := make([]float64, len(f.Steps))
	for i, s := range f.Steps {
		out[i] = s.Prediction
	}
	return out
}

// String returns a formatted table
func (f *Forecast) String() string {
	if f.NoData() {
		return "no data"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %-12s %-12s %-12s\n", "Step", "Prediction", "CI lower", "CI upper")
	for _, s := range f.Steps {
		fmt.Fprintf(&b, "%-5d %-12.4f %-12.4f %-12.4f\n", s.Step, s.Prediction, s.Lower, s.Upper)
	}
	return b.String()
}
