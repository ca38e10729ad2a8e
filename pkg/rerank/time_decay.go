package rerank

import (
	"math"
	"sort"
	"time"

	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/store/milvus"
)

// TimeDecayConfig holds configuration for time decay weighting
type TimeDecayConfig struct {
	Lambda float64 // Exponential decay rate per day (higher = faster decay)
	// Segment weights for different age ranges (used if UseSegments is true)
	UseSegments  bool
	RecentDays   float64
	MediumDays   float64
	RecentWeight float64 // Weight for recent (<= RecentDays)
	MediumWeight float64 // Weight for medium (RecentDays < x <= MediumDays)
	OldWeight    float64 // Weight for old (> MediumDays)
	// Now is the reference time; zero means the latest match end
	Now time.Time
}

// DefaultTimeDecayConfig returns a default configuration.
// Analogue matches span years, so ages decay over a year scale.
func DefaultTimeDecayConfig() TimeDecayConfig {
	return TimeDecayConfig{
		Lambda:       1.0 / 365,
		UseSegments:  false,
		RecentDays:   365,
		MediumDays:   5 * 365,
		RecentWeight: 1.0,
		MediumWeight: 0.7,
		OldWeight:    0.4,
	}
}

// SegmentConfig returns a configuration using segment-based weights
func SegmentConfig() TimeDecayConfig {
	cfg := DefaultTimeDecayConfig()
	cfg.UseSegments = true
	return cfg
}

// TimeDecay weights matches by inverse distance times the age decay
type TimeDecay struct {
	config TimeDecayConfig
}

// NewTimeDecay creates a time decay weigher with the given configuration
func NewTimeDecay(config TimeDecayConfig) *TimeDecay {
	return &TimeDecay{config: config}
}

// Weights implements Weigher
func (r *TimeDecay) Weights(matches []model.MatchedSegment) []float64 {
	now := r.config.Now
	if now.IsZero() {
		for _, m := range matches {
			if m.EndTime.After(now) {
				now = m.EndTime
			}
		}
	}

	base := InverseDistance.Weights(matches)
	for i, m := range matches {
		base[i] *= r.weight(now.Sub(m.EndTime))
	}
	return base
}

func (r *TimeDecay) weight(age time.Duration) float64 {
	ageDays := age.Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if r.config.UseSegments {
		return r.segmentWeight(ageDays)
	}
	return r.exponentialDecay(ageDays)
}

// exponentialDecay calculates decay using exponential function
func (r *TimeDecay) exponentialDecay(ageDays float64) float64 {
	return math.Exp(-r.config.Lambda * ageDays)
}

// segmentWeight returns weight based on age segments
func (r *TimeDecay) segmentWeight(ageDays float64) float64 {
	switch {
	case ageDays <= r.config.RecentDays:
		return r.config.RecentWeight
	case ageDays <= r.config.MediumDays:
		return r.config.MediumWeight
	default:
		return r.config.OldWeight
	}
}

// RankedResult extends a window search hit with its reranked score
type RankedResult struct {
	milvus.SearchResult
	TimeWeight float64
	FinalScore float64 // higher is better
}

// Rerank orders window search hits by closeness times time decay
func (r *TimeDecay) Rerank(results []milvus.SearchResult, now time.Time) []RankedResult {
	ranked := make([]RankedResult, len(results))

	for i, result := range results {
		weight := r.weight(now.Sub(result.TEnd))
		ranked[i] = RankedResult{
			SearchResult: result,
			TimeWeight:   weight,
			FinalScore:   inverse(float64(result.Score)) * weight,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return ranked
}

// TopN returns the top N results after reranking
func (r *TimeDecay) TopN(results []milvus.SearchResult, now time.Time, n int) []RankedResult {
	ranked := r.Rerank(results, now)
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// FilterByMinScore filters results by minimum final score
func FilterByMinScore(results []RankedResult, minScore float64) []RankedResult {
	var filtered []RankedResult
	for _, r := range results {
		if r.FinalScore >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
