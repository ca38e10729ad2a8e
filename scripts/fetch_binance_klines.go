package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tunogya/shapecast/pkg/data"
	"github.com/tunogya/shapecast/pkg/model"
)

// closes maps a kline close time to its close price
type closes map[time.Time]float64

func main() {
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT", "comma separated trading symbols")
	interval := flag.String("interval", "1w", "kline interval (1m, 5m, 1h, 1d, 1w, etc.)")
	limit := flag.Int("limit", 1000, "number of klines per symbol (max 1000)")
	output := flag.String("output", "data/series.csv", "output CSV file path")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	prices := make(map[string]closes)
	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		logger.Info("fetching klines", zap.String("symbol", symbol), zap.String("interval", *interval))
		c, err := fetchCloses(ctx, symbol, *interval, *limit)
		if err != nil {
			logger.Fatal("failed to fetch klines", zap.String("symbol", symbol), zap.Error(err))
		}
		logger.Info("fetched klines", zap.String("symbol", symbol), zap.Int("count", len(c)))
		prices[symbol] = c
	}

	frame, err := buildFrame(prices)
	if err != nil {
		logger.Fatal("failed to build frame", zap.Error(err))
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		logger.Fatal("failed to create output directory", zap.Error(err))
	}
	file, err := os.Create(*output)
	if err != nil {
		logger.Fatal("failed to create output file", zap.Error(err))
	}
	defer file.Close()

	if err := data.WriteFrame(file, frame, ""); err != nil {
		logger.Fatal("failed to write frame", zap.Error(err))
	}
	logger.Info("saved", zap.String("path", *output), zap.Int("rows", len(frame.Index)), zap.Int("series", len(frame.Series)))
}

func fetchCloses(ctx context.Context, symbol, interval string, limit int) (closes, error) {
	url := fmt.Sprintf("https://api.binance.com/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		symbol, interval, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	// [0] open time (ms), [1] open, [2] high, [3] low, [4] close, [5] volume, [6] close time (ms), ...
	var klines [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	out := make(closes, len(klines))
	for _, k := range klines {
		if len(k) < 7 {
			continue
		}
		ms, ok := k[6].(float64)
		if !ok {
			continue
		}
		s, ok := k[4].(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse close price: %w", err)
		}
		out[time.UnixMilli(int64(ms)).UTC()] = price
	}
	return out, nil
}

// buildFrame aligns every symbol on the union of close times. A symbol listed
// later than the others starts part way into the index.
func buildFrame(prices map[string]closes) (*model.Frame, error) {
	seen := make(map[time.Time]struct{})
	for _, c := range prices {
		for ts := range c {
			seen[ts] = struct{}{}
		}
	}
	index := make([]time.Time, 0, len(seen))
	for ts := range seen {
		index = append(index, ts)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })

	names := make([]string, 0, len(prices))
	for name := range prices {
		names = append(names, name)
	}
	sort.Strings(names)

	series := make([]model.Series, 0, len(names))
	for _, name := range names {
		c := prices[name]
		first, last := -1, -1
		for i, ts := range index {
			if _, ok := c[ts]; ok {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		values := make([]float64, last-first+1)
		for i := range values {
			v, ok := c[index[first+i]]
			if !ok {
				v = math.NaN()
			}
			values[i] = v
		}
		series = append(series, model.Series{Name: name, Start: first, Values: values})
	}
	return model.NewFrame(index, series...)
}
