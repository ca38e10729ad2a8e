package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
	"github.com/tunogya/shapecast/pkg/rerank"
	"github.com/tunogya/shapecast/pkg/store/milvus"
)

var (
	searchShape  shapeFlags
	searchSeries []string
	searchTopK   int
)

// searchCmd looks the shape up in the Milvus window index
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the nearest indexed windows in Milvus and forecast from them",
	Long: `Searches the window collection built by the index command for the
windows closest to the shape (squared L2 on min-max normalized windows),
reranks the hits by recency and forecasts from their continuations.

Only windows of exactly the shape's length are indexed together, so the
collection is chosen by the shape length.`,
	RunE: runSearch,
}

func init() {
	fs := searchCmd.Flags()
	searchShape.register(fs)
	registerScanFlags(fs)
	fs.StringSliceVar(&searchSeries, "series", nil, "restrict the search to these series")
	fs.IntVar(&searchTopK, "top-k", 0, "number of windows to fetch (overrides milvus.top_k)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	applyScanFlags(cmd.Flags())
	if searchTopK > 0 {
		cfg.Milvus.TopK = searchTopK
	}

	fcCfg, err := cfg.Forecast.Build()
	if err != nil {
		return err
	}
	shape, err := searchShape.build()
	if err != nil {
		return err
	}

	client, err := milvus.NewClient(ctx, cfg.Milvus.Config)
	if err != nil {
		return err
	}
	defer client.Close()

	coll := milvus.CollectionName(cfg.Milvus.CollectionPrefix, shape.Window)
	if err := client.Load(ctx, coll); err != nil {
		return err
	}

	hits, err := client.Search(ctx, coll, milvus.Embed(shape.Values), milvus.SeriesFilter(searchSeries...), cfg.Milvus.TopK)
	if err != nil {
		return err
	}
	ranked := rerank.NewTimeDecay(rerank.DefaultTimeDecayConfig()).Rerank(hits, time.Now())

	frame, err := loadFrame(ctx, searchSeries)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-5s %-20s %-12s %-10s %-10s\n", "Rank", "Series", "End", "Distance", "Score")
	var matches []model.MatchedSegment
	for i, r := range ranked {
		if float64(r.Score) >= cfg.Scan.Threshold {
			continue
		}
		seg, ok := milvus.ToSegment(frame, r.SearchResult)
		if !ok {
			logger.Debug("stale index entry", zap.String("window_id", r.WindowID))
			continue
		}
		matches = append(matches, seg)
		fmt.Fprintf(w, "%-5d %-20s %-12s %-10.4f %-10.4f\n",
			i+1, r.Series, r.TEnd.Format("2006-01-02"), r.Score, r.FinalScore)
	}

	paths := outcome.Extract(frame, matches, cfg.Forecast.Horizon)
	var weights []float64
	if fcCfg.Mode == model.ModeWeight {
		weights = fcCfg.Weigher.Weights(outcome.Matches(paths))
	}
	fc, err := outcome.Aggregate(paths, cfg.Forecast.Horizon, fcCfg.Mode, weights)
	if err != nil {
		return err
	}

	logger.Info("search finished",
		zap.String("collection", coll),
		zap.Int("hits", len(hits)),
		zap.Int("matches", len(matches)),
		zap.Int("continuations", len(paths)),
	)
	fmt.Fprintf(w, "\nForecast (%s, %d continuations)\n%s\n", fc.Mode, fc.Samples, fc)
	return nil
}
