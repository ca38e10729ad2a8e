package finder

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tunogya/shapecast/pkg/distance"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/window"
)

// scoreFunc scores the window of length layout.W starting at pos
type scoreFunc func(layout *window.Layout, pos int) distance.Score

// scanStats summarizes one pooled scan
type scanStats struct {
	Widths     []int
	Scored     int
	Skipped    map[distance.SkipReason]int
	Threshold  float64 // threshold the selection settled on
	Relaxed    int
	Candidates int
}

func (s *scanStats) fields() []zap.Field {
	return []zap.Field{
		zap.Ints("widths", s.Widths),
		zap.Int("scored", s.Scored),
		zap.Int("skipped_non_finite", s.Skipped[distance.SkipNonFinite]),
		zap.Int("skipped_metric", s.Skipped[distance.SkipMetric]),
		zap.Int("skipped_history", s.Skipped[distance.SkipHistory]),
		zap.Int("candidates", s.Candidates),
		zap.Float64("threshold", s.Threshold),
		zap.Int("relaxations", s.Relaxed),
	}
}

// widths returns the window lengths a scan visits. Jitter only applies to
// metrics that compare unequal lengths.
func widths(w int, cfg ScanConfig) []int {
	jitter := cfg.Jitter
	if !cfg.Metric.AllowsJitter() {
		jitter = 0
	}

	var out []int
	for lop := -jitter; lop <= jitter; lop++ {
		if w+lop >= 1 {
			out = append(out, w+lop)
		}
	}
	return out
}

// collect scores every scannable window of every width. Widths run
// concurrently; the pooled candidates are sorted by distance, then position,
// then width, so the result does not depend on scheduling.
func collect(ctx context.Context, series []model.Series, ws []int, workers int, score scoreFunc) ([]model.Candidate, *scanStats, error) {
	perWidth := make([][]model.Candidate, len(ws))
	skipped := make([]map[distance.SkipReason]int, len(ws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, wl := range ws {
		g.Go(func() error {
			layout := window.Assemble(series, wl)
			skips := make(map[distance.SkipReason]int)
			var cands []model.Candidate

			for n, pos := range layout.Starts() {
				if n%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}

				sc := score(layout, pos)
				if !sc.OK() {
					skips[sc.Skip]++
					continue
				}
				cands = append(cands, model.Candidate{
					Position:     pos,
					Distance:     sc.Distance,
					WindowLength: wl,
				})
			}

			perWidth[i] = cands
			skipped[i] = skips
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to scan windows: %w", err)
	}

	stats := &scanStats{Widths: ws, Skipped: make(map[distance.SkipReason]int)}
	var pooled []model.Candidate
	for i := range ws {
		pooled = append(pooled, perWidth[i]...)
		for reason, n := range skipped[i] {
			stats.Skipped[reason] += n
		}
	}
	stats.Scored = len(pooled)

	sortCandidates(pooled)
	return pooled, stats, nil
}

func sortCandidates(c []model.Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Distance != c[j].Distance {
			return c[i].Distance < c[j].Distance
		}
		if c[i].Position != c[j].Position {
			return c[i].Position < c[j].Position
		}
		return c[i].WindowLength < c[j].WindowLength
	})
}

// bestPerPosition keeps the closest window length at each buffer position.
// Input must be sorted.
func bestPerPosition(sorted []model.Candidate) []model.Candidate {
	seen := make(map[int]bool, len(sorted))
	out := make([]model.Candidate, 0, len(sorted))
	for _, c := range sorted {
		if seen[c.Position] {
			continue
		}
		seen[c.Position] = true
		out = append(out, c)
	}
	return out
}

// below returns the prefix of sorted candidates with distance < threshold
func below(sorted []model.Candidate, threshold float64) []model.Candidate {
	n := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Distance >= threshold
	})
	return sorted[:n]
}

// separate drops every candidate that has another candidate closer than
// minGap in buffer position. Both members of a close pair are dropped.
func separate(cands []model.Candidate, minGap float64) []model.Candidate {
	if len(cands) < 2 {
		return cands
	}

	byPos := make([]int, len(cands))
	for i := range byPos {
		byPos[i] = i
	}
	sort.Slice(byPos, func(a, b int) bool {
		return cands[byPos[a]].Position < cands[byPos[b]].Position
	})

	tooClose := make([]bool, len(cands))
	for k := 1; k < len(byPos); k++ {
		prev, cur := byPos[k-1], byPos[k]
		gap := cands[cur].Position - cands[prev].Position
		if float64(gap) < minGap {
			tooClose[prev] = true
			tooClose[cur] = true
		}
	}

	out := make([]model.Candidate, 0, len(cands))
	for i, c := range cands {
		if !tooClose[i] {
			out = append(out, c)
		}
	}
	return out
}

// selectFunc filters threshold survivors, keeping distance order
type selectFunc func(survivors []model.Candidate) []model.Candidate

// relax runs selection at the configured threshold and, when a relax step is
// set, raises the threshold until enough matches survive. It stops once the
// threshold already admits every candidate or the round limit is reached.
func relax(sorted []model.Candidate, cfg ScanConfig, sel selectFunc, stats *scanStats) ([]model.Candidate, error) {
	need := cfg.required()
	threshold := cfg.Threshold
	worst := 0.0
	if len(sorted) > 0 {
		worst = sorted[len(sorted)-1].Distance
	}

	for round := 0; ; round++ {
		kept := below(sorted, threshold)
		if sel != nil {
			kept = sel(kept)
		}
		stats.Threshold = threshold
		stats.Relaxed = round

		if len(kept) >= need {
			return kept, nil
		}
		if cfg.RelaxStep <= 0 || threshold > worst || round >= cfg.maxRelaxations() {
			return nil, fmt.Errorf("%w: %d of %d at threshold %g", ErrInsufficientMatches, len(kept), need, threshold)
		}
		threshold += cfg.RelaxStep
	}
}
