package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tunogya/shapecast/pkg/feature"
)

// Candidate is a scored window position in the assembled buffer.
// Produced during a scan and never mutated afterwards.
type Candidate struct {
	Position     int     `json:"position"`
	Distance     float64 `json:"distance"`
	WindowLength int     `json:"window_length"`
}

// MatchedSegment is a selected window sliced from the original series
type MatchedSegment struct {
	ID       string    `json:"id"`
	Series   string    `json:"series"`
	Start    int       `json:"start"` // local offset of Values[0] within the series
	Values   []float64 `json:"values"`
	Distance float64   `json:"distance"`
	EndTime  time.Time `json:"end_time"`
}

// GenerateMatchID creates a deterministic match ID
// Format: hash(series|end_time|length)
func GenerateMatchID(series string, endTime time.Time, length int) string {
	data := fmt.Sprintf("%s|%d|%d", series, endTime.UnixNano(), length)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// NewMatchedSegment creates a segment with a generated ID
func NewMatchedSegment(series string, start int, values []float64, distance float64, endTime time.Time) MatchedSegment {
	return MatchedSegment{
		ID:       GenerateMatchID(series, endTime, len(values)),
		Series:   series,
		Start:    start,
		Values:   values,
		Distance: distance,
		EndTime:  endTime,
	}
}

// End returns the local offset of the last matched observation
func (m *MatchedSegment) End() int {
	return m.Start + len(m.Values) - 1
}

// Summary returns the raw-scale statistics of the matched values
func (m *MatchedSegment) Summary() feature.Summary {
	return feature.Summarize(m.Values)
}

// Overlap returns how many local offsets two segments share
func (m *MatchedSegment) Overlap(other *MatchedSegment) int {
	lo := max(m.Start, other.Start)
	hi := min(m.End(), other.End())
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

// MultiMatch is a primary segment plus the covariate windows that agreed with it.
// Each segment keeps its own distance; Distance is their sum.
type MultiMatch struct {
	Primary    MatchedSegment   `json:"primary"`
	Covariates []MatchedSegment `json:"covariates"`
	Distance   float64          `json:"distance"`
}
