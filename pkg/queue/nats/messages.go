package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/finder"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/rerank"
)

// Subject constants
const (
	SubjectScanRequest = "shapecast.scan.request"
	SubjectScanResult  = "shapecast.scan.result"
)

// ErrInvalidRequest indicates a scan request that cannot be run
var ErrInvalidRequest = errors.New("nats: invalid scan request")

// Subjects returns every subject the shapecast stream carries
func Subjects() []string {
	return []string{SubjectScanRequest, SubjectScanResult}
}

// ScanRequest asks a worker to scan the stored series for a shape
type ScanRequest struct {
	ID             string    `json:"id"`
	Shape          []float64 `json:"shape"`
	Series         []string  `json:"series,omitempty"` // empty scans every stored series
	Metric         string    `json:"metric"`
	Threshold      float64   `json:"threshold"`
	Jitter         int       `json:"jitter,omitempty"`
	Select         bool      `json:"select"`
	MinMatches     int       `json:"min_matches,omitempty"`
	RelaxStep      float64   `json:"relax_step,omitempty"`
	MaxRelaxations int       `json:"max_relaxations,omitempty"`
	Horizon        int       `json:"horizon"`
	Mode           string    `json:"mode"`
	Weigher        string    `json:"weigher,omitempty"`
	Scenarios      bool      `json:"scenarios,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

// NewScanRequest creates a request with a fresh id and the default scan settings
func NewScanRequest(shape []float64, horizon int) *ScanRequest {
	def := finder.DefaultScanConfig()
	return &ScanRequest{
		ID:             uuid.NewString(),
		Shape:          shape,
		Metric:         def.Metric.String(),
		Threshold:      def.Threshold,
		Select:         def.Select,
		MaxRelaxations: def.MaxRelaxations,
		Horizon:        horizon,
		Mode:           model.ModeMean.String(),
		RequestedAt:    time.Now().UTC(),
	}
}

// Validate checks the request can be run
func (r *ScanRequest) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("%w: id %q: %v", ErrInvalidRequest, r.ID, err)
	}
	if len(r.Shape) == 0 {
		return fmt.Errorf("%w: empty shape", ErrInvalidRequest)
	}
	if r.Horizon <= 0 {
		return fmt.Errorf("%w: horizon must be positive", ErrInvalidRequest)
	}
	return nil
}

// ScanConfig converts the request into finder scan parameters
func (r *ScanRequest) ScanConfig() (finder.ScanConfig, error) {
	metric, err := distance.ParseMetric(r.Metric)
	if err != nil {
		return finder.ScanConfig{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return finder.ScanConfig{
		Metric:         metric,
		Threshold:      r.Threshold,
		Jitter:         r.Jitter,
		Select:         r.Select,
		MinMatches:     r.MinMatches,
		RelaxStep:      r.RelaxStep,
		MaxRelaxations: r.MaxRelaxations,
	}, nil
}

// ForecastConfig converts the request into finder forecast parameters
func (r *ScanRequest) ForecastConfig() (finder.ForecastConfig, error) {
	mode, err := model.ParseForecastMode(r.Mode)
	if err != nil {
		return finder.ForecastConfig{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	weigher, err := rerank.Parse(r.Weigher)
	if err != nil {
		return finder.ForecastConfig{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return finder.ForecastConfig{Mode: mode, Weigher: weigher}, nil
}

// ScanResult answers a ScanRequest. Error is set when the scan failed.
type ScanResult struct {
	RequestID   string                  `json:"request_id"`
	Matches     []model.MatchedSegment  `json:"matches,omitempty"`
	Forecast    *model.Forecast         `json:"forecast,omitempty"`
	Scenarios   []model.ScenarioCluster `json:"scenarios,omitempty"`
	Error       string                  `json:"error,omitempty"`
	CompletedAt time.Time               `json:"completed_at"`
}

// Failed reports whether the scan behind the result failed
func (r *ScanResult) Failed() bool {
	return r.Error != ""
}

// Encode serializes a message to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeScanRequest deserializes a ScanRequest from JSON bytes
func DecodeScanRequest(data []byte) (*ScanRequest, error) {
	var msg ScanRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeScanResult deserializes a ScanResult from JSON bytes
func DecodeScanResult(data []byte) (*ScanResult, error) {
	var msg ScanResult
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
