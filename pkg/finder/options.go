package finder

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
	"github.com/tunogya/shapecast/pkg/rerank"
)

var (
	// ErrNotFitted indicates forecasting or clustering before a successful scan
	ErrNotFitted = errors.New("finder: scan before forecasting")

	// ErrInsufficientMatches indicates selection left fewer matches than required
	ErrInsufficientMatches = errors.New("finder: insufficient matches")

	// ErrInvalidConfig indicates unusable scan or forecast parameters
	ErrInvalidConfig = errors.New("finder: invalid configuration")
)

// DefaultMaxRelaxations bounds threshold relaxation when none is configured
const DefaultMaxRelaxations = 1000

// Option configures a Finder or MultiFinder
type Option func(*options)

type options struct {
	logger  *zap.Logger
	workers int
}

func defaultOptions() options {
	return options{
		logger:  zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for scan summaries
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWorkers caps how many window lengths are scanned concurrently
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// ScanConfig holds the scan and selection parameters
type ScanConfig struct {
	Metric    distance.Metric
	Threshold float64 // keep candidates with distance strictly below
	Jitter    int     // DTW only: also scan window lengths in [w-Jitter, w+Jitter]
	Select    bool    // non-overlap selection
	// MinMatches is the number of matches a scan must produce; zero still
	// requires one.
	MinMatches     int
	RelaxStep      float64 // threshold increase per retry, zero disables relaxation
	MaxRelaxations int     // zero means DefaultMaxRelaxations
}

// DefaultScanConfig returns the default scan parameters
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Metric:         distance.Euclidean,
		Threshold:      0.5,
		Jitter:         0,
		Select:         true,
		MaxRelaxations: DefaultMaxRelaxations,
	}
}

func (c ScanConfig) validate() error {
	if c.Jitter < 0 {
		return fmt.Errorf("%w: jitter must be non-negative", ErrInvalidConfig)
	}
	if c.RelaxStep < 0 {
		return fmt.Errorf("%w: relax step must be non-negative", ErrInvalidConfig)
	}
	if c.Metric != distance.Euclidean && c.Metric != distance.DTW {
		return fmt.Errorf("%w: unknown metric", ErrInvalidConfig)
	}
	return nil
}

func (c ScanConfig) required() int {
	return max(1, c.MinMatches)
}

func (c ScanConfig) maxRelaxations() int {
	if c.MaxRelaxations <= 0 {
		return DefaultMaxRelaxations
	}
	return c.MaxRelaxations
}

// Plotter renders a forecast. Implementations only read their arguments.
type Plotter interface {
	Plot(shape *model.Shape, paths []outcome.Path, forecast *model.Forecast) error
}

// ForecastConfig holds forecast aggregation parameters
type ForecastConfig struct {
	Mode    model.ForecastMode
	Weigher rerank.Weigher // weight mode only; nil means rerank.InverseDistance
	Plotter Plotter        // optional
}
