package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/finder"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/queue/nats"
	"github.com/tunogya/shapecast/pkg/store/duckdb"
)

// RunStore persists finished runs
type RunStore interface {
	Save(ctx context.Context, run *duckdb.Run) error
}

// handler runs scan requests against the stored series
type handler struct {
	frames  data.FrameProvider
	runs    RunStore
	opts    []finder.Option
	logger  *zap.Logger
	horizon int // scenario horizon
	regions map[string]string
}

// handle runs one request. Scan failures are reported in the result; the
// returned error is reserved for failures worth a redelivery.
func (h *handler) handle(ctx context.Context, req *nats.ScanRequest) (*nats.ScanResult, error) {
	res := &nats.ScanResult{RequestID: req.ID}
	fail := func(err error) (*nats.ScanResult, error) {
		h.logger.Info("scan request failed", zap.String("id", req.ID), zap.Error(err))
		res.Error = err.Error()
		res.CompletedAt = time.Now().UTC()
		return res, nil
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}
	scanCfg, err := req.ScanConfig()
	if err != nil {
		return fail(err)
	}
	fcCfg, err := req.ForecastConfig()
	if err != nil {
		return fail(err)
	}
	shape, err := model.NewShape(req.Shape)
	if err != nil {
		return fail(err)
	}

	frame, err := h.frames.LoadFrame(ctx, req.Series...)
	if errors.Is(err, model.ErrUnknownSeries) || errors.Is(err, data.ErrNoSeries) {
		return fail(err)
	}
	if err != nil {
		return nil, err
	}

	fd := finder.New(frame, shape, h.opts...)
	if res.Matches, err = fd.ScanContext(ctx, scanCfg); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return fail(err)
	}
	if res.Forecast, err = fd.Forecast(req.Horizon, fcCfg); err != nil {
		return fail(err)
	}
	if req.Scenarios {
		horizon := h.horizon
		if horizon <= 0 {
			horizon = req.Horizon
		}
		if res.Scenarios, err = fd.CreateScenarios(horizon, h.regions); err != nil {
			return fail(err)
		}
	}
	res.CompletedAt = time.Now().UTC()

	if h.runs != nil {
		run := &duckdb.Run{
			ID:        req.ID,
			Shape:     shape.Values,
			Metric:    scanCfg.Metric.String(),
			Threshold: scanCfg.Threshold,
			CreatedAt: res.CompletedAt,
			Matches:   res.Matches,
			Forecast:  res.Forecast,
			Scenarios: res.Scenarios,
		}
		if err := h.runs.Save(ctx, run); err != nil {
			return nil, err
		}
	}

	h.logger.Info("scan request done",
		zap.String("id", req.ID),
		zap.Int("matches", len(res.Matches)),
		zap.Int("samples", res.Forecast.Samples),
		zap.Int("scenarios", len(res.Scenarios)),
	)
	return res, nil
}
