package model

import "time"

// ScenarioMember is one matched continuation attributed to a scenario
type ScenarioMember struct {
	Series     string    `json:"series"`
	EndTime    time.Time `json:"end_time"`
	Distance   float64   `json:"distance"`
	Region     string    `json:"region,omitempty"`
	Decade     string    `json:"decade,omitempty"`
	ScaleValue float64   `json:"scale_value"` // sum of the raw matched values
	Scale      string    `json:"scale,omitempty"`
}

// ScenarioCluster is a representative continuation with its probability
type ScenarioCluster struct {
	ID          int              `json:"id"`
	Trajectory  []float64        `json:"trajectory"` // per-step mean over members
	Probability float64          `json:"probability"`
	Members     []ScenarioMember `json:"members,omitempty"`
}

// Decade bucket labels
const (
	Decade1990s = "90-2000"
	Decade2000s = "2000-2010"
	Decade2010s = "2010-2020"
	Decade2020s = "2020-Now"
)

// Scale bucket labels
const (
	ScaleUnder10   = "<10"
	Scale10To100   = "10-100"
	Scale100To1000 = "100-1000"
	ScaleOver1000  = ">1000"
)

// ClassifyDecade buckets the year a match ended.
// Years outside [1990, 2099] are left unlabeled.
func ClassifyDecade(year int) string {
	switch {
	case year < 1990:
		return ""
	case year < 2000:
		return Decade1990s
	case year < 2010:
		return Decade2000s
	case year < 2020:
		return Decade2010s
	case year <= 2099:
		return Decade2020s
	default:
		return ""
	}
}

// ClassifyScale buckets the summed raw values of a match.
// Negative sums are left unlabeled.
func ClassifyScale(sum float64) string {
	switch {
	case sum < 0:
		return ""
	case sum < 10:
		return ScaleUnder10
	case sum < 100:
		return Scale10To100
	case sum < 1000:
		return Scale100To1000
	default:
		return ScaleOver1000
	}
}
