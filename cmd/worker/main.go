package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/config"
	"github.com/tunogya/shapecast/pkg/queue/nats"
	"github.com/tunogya/shapecast/pkg/store/duckdb"
)

// Flags holds worker command line options
type Flags struct {
	ConfigPath string
	Consumer   string
	Verbose    bool
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
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
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, flags Flags, logger *zap.Logger) error {
	logger.Info("starting worker", zap.String("nats", cfg.NATS.URL), zap.String("duckdb", cfg.Storage.DuckDBPath))

	duckClient, err := duckdb.NewClient(cfg.Storage.DuckDBPath)
	if err != nil {
		return err
	}
	defer duckClient.Close()

	if err := duckdb.InitializeSchema(ctx, duckClient); err != nil {
		return err
	}

	natsClient, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return err
	}
	defer natsClient.Close()

	if err := natsClient.EnsureStream(ctx); err != nil {
		return err
	}

	h := &handler{
		frames:  duckdb.NewObservationRepo(duckClient),
		runs:    duckdb.NewRunRepo(duckClient),
		opts:    cfg.Scan.Options(logger),
		logger:  logger,
		horizon: cfg.Scenario.Horizon,
		regions: cfg.Scenario.Regions,
	}

	consumer, err := natsClient.ServeScans(ctx, flags.Consumer, func(ctx context.Context, req *nats.ScanRequest) (*nats.ScanResult, error) {
		res, err := h.handle(ctx, req)
		if err != nil {
			logger.Error("scan request will be redelivered", zap.String("id", req.ID), zap.Error(err))
		}
		return res, err
	})
	if err != nil {
		return err
	}
	defer consumer.Stop()

	logger.Info("worker started, waiting for scan requests", zap.String("subject", nats.SubjectScanRequest))
	<-ctx.Done()
	logger.Info("shutting down worker")
	return nil
}

func parseFlags() Flags {
	flags := Flags{}

	flag.StringVar(&flags.ConfigPath, "config", "shapecast.yaml", "config file")
	flag.StringVar(&flags.Consumer, "consumer", "scan-worker", "durable consumer name")
	flag.BoolVar(&flags.Verbose, "verbose", false, "debug logging")

	flag.Parse()
	return flags
}
