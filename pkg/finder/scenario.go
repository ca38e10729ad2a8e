package finder

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/tunogya/shapecast/pkg/cluster"
	"github.com/tunogya/shapecast/pkg/model"
	"github.com/tunogya/shapecast/pkg/outcome"
)

const (
	// MaxScenarios is the cluster count above which continuations are dampened
	MaxScenarios = 7

	// dampenAbove marks a continuation as extreme
	dampenAbove = 2.0
	// dampenValue replaces every step of an extreme continuation
	dampenValue = 10.0
)

// CreateScenarios clusters the continuations of the matches into at most
// MaxScenarios representative trajectories. regions maps series names to a
// region tag and may be nil.
func (f *Finder) CreateScenarios(horizon int, regions map[string]string) ([]model.ScenarioCluster, error) {
	paths, err := f.Continuations(horizon)
	if err != nil {
		return nil, err
	}
	f.scenarios = nil
	if len(paths) == 0 {
		return nil, nil
	}

	obs := pathValues(paths)
	cut := float64(horizon) / 2

	labels, n, err := cluster.CutLabels(obs, cut)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster continuations: %w", err)
	}

	if n > MaxScenarios {
		damped := dampen(obs)
		linkage, err := cluster.Ward(damped)
		if err != nil {
			return nil, fmt.Errorf("failed to cluster dampened continuations: %w", err)
		}
		for linkage.NumClusters(cut) > MaxScenarios {
			cut *= 2
		}
		labels, n = linkage.Cut(cut), linkage.NumClusters(cut)
		f.opts.logger.Debug("dampened scenarios", zap.Float64("cut", cut), zap.Int("clusters", n))
	}

	scenarios := summarizeClusters(paths, obs, labels, n)
	for i := range scenarios {
		for j := range scenarios[i].Members {
			m := &scenarios[i].Members[j]
			m.Region = regions[m.Series]
			m.Decade = model.ClassifyDecade(m.EndTime.Year())
			m.Scale = model.ClassifyScale(m.ScaleValue)
		}
	}

	f.scenarios = scenarios
	f.opts.logger.Info("scenarios", zap.Int("continuations", len(paths)), zap.Int("clusters", n))
	return scenarios, nil
}

// CreateScenariosPredict is the lightweight clustering used for prediction:
// cut at horizon/3, no dampening and no attribution.
func (f *Finder) CreateScenariosPredict(horizon int) ([]model.ScenarioCluster, error) {
	paths, err := f.Continuations(horizon)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	obs := pathValues(paths)
	labels, n, err := cluster.CutLabels(obs, float64(horizon)/3)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster continuations: %w", err)
	}

	scenarios := summarizeClusters(paths, obs, labels, n)
	for i := range scenarios {
		scenarios[i].Members = nil
	}
	return scenarios, nil
}

func pathValues(paths []outcome.Path) [][]float64 {
	obs := make([][]float64, len(paths))
	for i, p := range paths {
		obs[i] = p.Values
	}
	return obs
}

// dampen saturates every continuation that has a value above dampenAbove
func dampen(obs [][]float64) [][]float64 {
	out := make([][]float64, len(obs))
	for i, row := range obs {
		if floats.Max(row) <= dampenAbove {
			out[i] = row
			continue
		}
		sat := make([]float64, len(row))
		for j := range sat {
			sat[j] = dampenValue
		}
		out[i] = sat
	}
	return out
}

// summarizeClusters builds one scenario per label from the undampened values
func summarizeClusters(paths []outcome.Path, obs [][]float64, labels []int, n int) []model.ScenarioCluster {
	horizon := len(obs[0])
	scenarios := make([]model.ScenarioCluster, n)
	for i := range scenarios {
		scenarios[i] = model.ScenarioCluster{ID: i, Trajectory: make([]float64, horizon)}
	}

	for i, label := range labels {
		sc := &scenarios[label]
		floats.Add(sc.Trajectory, obs[i])

		m := paths[i].Match
		sc.Members = append(sc.Members, model.ScenarioMember{
			Series:     m.Series,
			EndTime:    m.EndTime,
			Distance:   m.Distance,
			ScaleValue: m.Summary().Sum,
		})
	}

	total := float64(len(labels))
	for i := range scenarios {
		count := float64(len(scenarios[i].Members))
		floats.Scale(1/count, scenarios[i].Trajectory)
		scenarios[i].Probability = count / total
	}
	return scenarios
}
