package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/config"
	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/rerank"
	"github.com/tunogya/shapecast/pkg/store/duckdb"
	"github.com/tunogya/shapecast/pkg/store/milvus"
)

// Flags holds index command line options
type Flags struct {
	ConfigPath string
	CSVPath    string
	Windows    []int
	BatchSize  int
	NList      int
	Import     bool
	Reset      bool
	Verbose    bool
}

func main() {
	flags, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if flags.CSVPath != "" {
		cfg.Data.Path = flags.CSVPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := cfg.Logging.NewLogger(flags.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, flags, logger); err != nil {
		logger.Fatal("index failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, flags Flags, logger *zap.Logger) error {
	logger.Info("loading series", zap.String("csv", cfg.Data.Path))
	frame, err := data.NewCSVProvider(cfg.Data.Path, cfg.Data.TimeLayout).LoadFrame(ctx)
	if err != nil {
		return fmt.Errorf("failed to load series: %w", err)
	}
	logger.Info("series loaded", zap.Int("series", len(frame.Series)), zap.Int("timestamps", len(frame.Index)))

	if flags.Import {
		if err := importObservations(ctx, cfg, frame, logger); err != nil {
			return err
		}
	}

	logger.Info("connecting to milvus", zap.String("address", cfg.Milvus.Address))
	client, err := milvus.NewClient(ctx, cfg.Milvus.Config)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, w := range flags.Windows {
		if err := indexWindows(ctx, client, cfg, frame, w, flags, logger); err != nil {
			return err
		}
	}
	logger.Info("index completed", zap.Ints("windows", flags.Windows))
	return nil
}

func importObservations(ctx context.Context, cfg *config.Config, frame *model.Frame, logger *zap.Logger) error {
	client, err := duckdb.NewClient(cfg.Storage.DuckDBPath)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := duckdb.InitializeSchema(ctx, client); err != nil {
		return err
	}
	written, err := duckdb.NewObservationRepo(client).InsertFrame(ctx, frame)
	if err != nil {
		return err
	}
	logger.Info("observations stored", zap.String("duckdb", client.Path()), zap.Int("rows", written))
	return nil
}

func indexWindows(ctx context.Context, client *milvus.Client, cfg *config.Config, frame *model.Frame, w int, flags Flags, logger *zap.Logger) error {
	collCfg := milvus.DefaultCollectionConfig(w)
	collCfg.Name = milvus.CollectionName(cfg.Milvus.CollectionPrefix, w)

	if flags.Reset {
		if err := client.Reset(ctx, collCfg.Name); err != nil {
			return err
		}
	}

	windows := milvus.WindowsFromFrame(frame, w, cfg.Milvus.Step)
	logger.Info("windows built", zap.String("collection", collCfg.Name), zap.Int("w", w), zap.Int("windows", len(windows)))

	written, err := client.IndexWindows(ctx, collCfg, windows, flags.BatchSize, flags.NList)
	if err != nil {
		return fmt.Errorf("failed to index windows of length %d after %d written: %w", w, written, err)
	}
	logger.Info("windows indexed", zap.String("collection", collCfg.Name), zap.Int("written", written))

	if len(windows) > 0 {
		probe(ctx, client, collCfg.Name, windows[len(windows)-1], cfg.Milvus.TopK, logger)
	}
	return nil
}

// probe searches with the newest window as a smoke test of the collection
func probe(ctx context.Context, client *milvus.Client, coll string, w *milvus.WindowData, topK int, logger *zap.Logger) {
	hits, err := client.Search(ctx, coll, w.Embedding, "", topK)
	if err != nil {
		logger.Warn("probe search failed", zap.String("collection", coll), zap.Error(err))
		return
	}

	ranked := rerank.NewTimeDecay(rerank.DefaultTimeDecayConfig()).TopN(hits, time.Now(), 5)
	for i, r := range ranked {
		logger.Info("probe hit",
			zap.Int("rank", i+1),
			zap.String("series", r.Series),
			zap.Time("t_end", r.TEnd),
			zap.Float32("distance", r.Score),
			zap.Float64("time_weight", r.TimeWeight),
			zap.Float64("final", r.FinalScore),
		)
	}
}

func parseFlags() (Flags, error) {
	flags := Flags{}
	var windows string

	flag.StringVar(&flags.ConfigPath, "config", "shapecast.yaml", "config file")
	flag.StringVar(&flags.CSVPath, "csv", "", "wide CSV of series (overrides data.path)")
	flag.StringVar(&windows, "windows", "12", "comma separated window lengths to index")
	flag.IntVar(&flags.BatchSize, "batch", 1000, "batch size for inserts")
	flag.IntVar(&flags.NList, "nlist", 128, "IVF cluster count of the index")
	flag.BoolVar(&flags.Import, "import", false, "also store the observations in DuckDB")
	flag.BoolVar(&flags.Reset, "reset", false, "drop existing collections before indexing")
	flag.BoolVar(&flags.Verbose, "verbose", false, "debug logging")

	flag.Parse()

	for _, f := range strings.Split(windows, ",") {
		w, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || w <= 0 {
			return flags, fmt.Errorf("invalid window length %q", f)
		}
		flags.Windows = append(flags.Windows, w)
	}
	if flags.BatchSize <= 0 {
		return flags, fmt.Errorf("batch size must be positive")
	}
	return flags, nil
}
