package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/store/duckdb"
)

// shapeFlags selects the reference shape
type shapeFlags struct {
	values string
	random int
	seed   uint64
	window int
}

func (s *shapeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&s.values, "shape", "", "comma separated shape points, e.g. 0,1,2,1")
	fs.IntVar(&s.random, "random", 0, "use a random shape of this many points")
	fs.Uint64Var(&s.seed, "seed", 1, "seed for --random")
	fs.IntVar(&s.window, "window", 0, "resample --shape to this many points")
}

func (s *shapeFlags) build() (*model.Shape, error) {
	switch {
	case s.values != "" && s.random > 0:
		return nil, fmt.Errorf("--shape and --random are exclusive")
	case s.random > 0:
		return model.RandomShape(s.random, rand.New(rand.NewPCG(s.seed, s.seed)))
	case s.values != "":
		points, err := parseFloats(s.values)
		if err != nil {
			return nil, err
		}
		if s.window > 0 {
			return model.DrawnShape(points, s.window)
		}
		return model.NewShape(points)
	default:
		return nil, fmt.Errorf("a shape is required: pass --shape or --random")
	}
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shape point %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// openStore opens the configured DuckDB database with its schema in place
func openStore(ctx context.Context) (*duckdb.Client, error) {
	client, err := duckdb.NewClient(cfg.Storage.DuckDBPath)
	if err != nil {
		return nil, err
	}
	if err := duckdb.InitializeSchema(ctx, client); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// loadFrame reads the named series, or all series, from the configured source
func loadFrame(ctx context.Context, names []string) (*model.Frame, error) {
	var provider data.FrameProvider
	switch source {
	case sourceDuckDB:
		client, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		provider = duckdb.NewObservationRepo(client)
	default:
		provider = data.NewCSVProvider(cfg.Data.Path, cfg.Data.TimeLayout)
	}

	frame, err := provider.LoadFrame(ctx, names...)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}
	logger.Debug("series loaded",
		zap.String("source", source),
		zap.Int("series", len(frame.Series)),
		zap.Int("timestamps", len(frame.Index)),
	)
	return frame, nil
}
