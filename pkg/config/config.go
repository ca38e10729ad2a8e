// Package config loads the shapecast YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/finder"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/queue/nats"
	"github.com/tunogya/shapecast/pkg/rerank"
	"github.com/tunogya/shapecast/pkg/store/milvus"
)

// Environment variables that override file values
const (
	EnvDuckDB = "SHAPECAST_DUCKDB"
	EnvMilvus = "SHAPECAST_MILVUS"
	EnvNATS   = "SHAPECAST_NATS"
)

// Config holds all shapecast configuration
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Scan     ScanConfig     `yaml:"scan"`
	Forecast ForecastConfig `yaml:"forecast"`
	Scenario ScenarioConfig `yaml:"scenario"`
	Storage  StorageConfig  `yaml:"storage"`
	Milvus   MilvusConfig   `yaml:"milvus"`
	NATS     nats.Config    `yaml:"nats"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DataConfig locates the wide CSV of series
type DataConfig struct {
	Path       string `yaml:"path"`
	TimeLayout string `yaml:"time_layout"` // Go layout; empty accepts RFC 3339, dates and unix milliseconds
}

// ScanConfig mirrors finder.ScanConfig with names suitable for YAML
type ScanConfig struct {
	Metric         string  `yaml:"metric"`
	Threshold      float64 `yaml:"threshold"`
	Jitter         int     `yaml:"jitter"`
	Select         bool    `yaml:"select"`
	MinMatches     int     `yaml:"min_matches"`
	RelaxStep      float64 `yaml:"relax_step"`
	MaxRelaxations int     `yaml:"max_relaxations"`
	Workers        int     `yaml:"workers"` // zero uses GOMAXPROCS
}

// ForecastConfig holds forecast parameters
type ForecastConfig struct {
	Horizon int    `yaml:"horizon"`
	Mode    string `yaml:"mode"`    // mean | weight
	Weigher string `yaml:"weigher"` // inverse | raw | uniform | decay
}

// ScenarioConfig holds scenario clustering parameters
type ScenarioConfig struct {
	Horizon int               `yaml:"horizon"`
	Regions map[string]string `yaml:"regions,omitempty"` // series name -> region
}

// StorageConfig locates the DuckDB database
type StorageConfig struct {
	DuckDBPath string `yaml:"duckdb_path"`
}

// MilvusConfig holds vector index settings
type MilvusConfig struct {
	milvus.Config    `yaml:",inline"`
	CollectionPrefix string `yaml:"collection_prefix"`
	Step             int    `yaml:"step"` // stride between indexed windows
	TopK             int    `yaml:"top_k"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	scan := finder.DefaultScanConfig()
	return &Config{
		Data: DataConfig{
			Path: "series.csv",
		},
		Scan: ScanConfig{
			Metric:         scan.Metric.String(),
			Threshold:      scan.Threshold,
			Jitter:         scan.Jitter,
			Select:         scan.Select,
			MinMatches:     scan.MinMatches,
			RelaxStep:      scan.RelaxStep,
			MaxRelaxations: scan.MaxRelaxations,
		},
		Forecast: ForecastConfig{
			Horizon: 12,
			Mode:    model.ModeMean.String(),
			Weigher: "inverse",
		},
		Scenario: ScenarioConfig{
			Horizon: 12,
		},
		Storage: StorageConfig{
			DuckDBPath: "shapecast.duckdb",
		},
		Milvus: MilvusConfig{
			Config:           milvus.DefaultConfig(),
			CollectionPrefix: milvus.DefaultCollectionPrefix,
			Step:             1,
			TopK:             50,
		},
		NATS: nats.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvDuckDB); v != "" {
		c.Storage.DuckDBPath = v
	}
	if v := os.Getenv(EnvMilvus); v != "" {
		c.Milvus.Address = v
	}
	if v := os.Getenv(EnvNATS); v != "" {
		c.NATS.URL = v
	}
}

// Validate checks that every named option resolves and numbers are in range
func (c *Config) Validate() error {
	if _, err := c.Scan.Build(); err != nil {
		return err
	}
	if _, err := c.Forecast.Build(); err != nil {
		return err
	}
	if c.Forecast.Horizon <= 0 {
		return fmt.Errorf("forecast horizon must be positive, got %d", c.Forecast.Horizon)
	}
	if c.Scenario.Horizon <= 0 {
		return fmt.Errorf("scenario horizon must be positive, got %d", c.Scenario.Horizon)
	}
	if c.Milvus.Step <= 0 {
		return fmt.Errorf("milvus step must be positive, got %d", c.Milvus.Step)
	}
	if c.Milvus.TopK <= 0 {
		return fmt.Errorf("milvus top_k must be positive, got %d", c.Milvus.TopK)
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}
	return nil
}

// Build resolves the metric name into a finder.ScanConfig
func (c ScanConfig) Build() (finder.ScanConfig, error) {
	metric, err := distance.ParseMetric(c.Metric)
	if err != nil {
		return finder.ScanConfig{}, fmt.Errorf("invalid scan metric: %w", err)
	}
	if c.Threshold < 0 {
		return finder.ScanConfig{}, fmt.Errorf("scan threshold must be non-negative, got %g", c.Threshold)
	}
	if c.Jitter < 0 {
		return finder.ScanConfig{}, fmt.Errorf("scan jitter must be non-negative, got %d", c.Jitter)
	}
	return finder.ScanConfig{
		Metric:         metric,
		Threshold:      c.Threshold,
		Jitter:         c.Jitter,
		Select:         c.Select,
		MinMatches:     c.MinMatches,
		RelaxStep:      c.RelaxStep,
		MaxRelaxations: c.MaxRelaxations,
	}, nil
}

// Options returns the finder options implied by the scan section
func (c ScanConfig) Options(logger *zap.Logger) []finder.Option {
	return []finder.Option{finder.WithLogger(logger), finder.WithWorkers(c.Workers)}
}

// Build resolves the mode and weigher names into a finder.ForecastConfig
func (c ForecastConfig) Build() (finder.ForecastConfig, error) {
	mode, err := model.ParseForecastMode(c.Mode)
	if err != nil {
		return finder.ForecastConfig{}, fmt.Errorf("invalid forecast mode: %w", err)
	}
	weigher, err := rerank.Parse(c.Weigher)
	if err != nil {
		return finder.ForecastConfig{}, fmt.Errorf("invalid forecast weigher: %w", err)
	}
	return finder.ForecastConfig{Mode: mode, Weigher: weigher}, nil
}

// NewLogger builds a zap logger at the configured level. verbose forces debug.
func (c LoggingConfig) NewLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if c.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging level: %w", err)
	}
	if verbose {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
