package finder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/shapecast/pkg/model"
)

// riseThen builds a series that rises 0..5 and continues with tail
func riseThen(tail ...float64) []float64 {
	return append([]float64{0, 1, 2, 3, 4, 5}, tail...)
}

func scannedFinder(t *testing.T, columns map[string][]float64) *Finder {
	t.Helper()
	fd := New(denseFrame(t, columns), mustShape(t, 0, 1, 2, 3, 4, 5))
	_, err := fd.Scan(ScanConfig{Threshold: 1e-12, Select: true})
	require.NoError(t, err)
	return fd
}

func probabilitySum(scenarios []model.ScenarioCluster) float64 {
	total := 0.0
	for _, s := range scenarios {
		total += s.Probability
	}
	return total
}

func TestCreateScenariosSingleCluster(t *testing.T) {
	fd := scannedFinder(t, map[string][]float64{"p": periodic()})

	scenarios, err := fd.CreateScenarios(4, map[string]string{"p": "north"})
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	sc := scenarios[0]
	assert.Equal(t, 1.0, sc.Probability)
	assert.InDeltaSlice(t, []float64{0.8, 0.6, 0.4, 0.2}, sc.Trajectory, 1e-12)
	require.Len(t, sc.Members, 5)
	for _, m := range sc.Members {
		assert.Equal(t, "p", m.Series)
		assert.Equal(t, "north", m.Region)
		assert.Equal(t, model.Decade2020s, m.Decade)
		assert.Equal(t, 15.0, m.ScaleValue)
		assert.Equal(t, model.Scale10To100, m.Scale)
	}
	assert.Equal(t, scenarios, fd.Scenarios())
}

func TestCreateScenariosDampening(t *testing.T) {
	// one calm continuation and eleven far apart extreme ones
	columns := map[string][]float64{}
	for i := 0; i < 12; i++ {
		c := float64(15 * i)
		columns[fmt.Sprintf("s%02d", i)] = riseThen(c, c, c, c)
	}
	fd := scannedFinder(t, columns)
	require.Len(t, fd.Matches(), 12)

	scenarios, err := fd.CreateScenarios(4, nil)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	assert.InDelta(t, 1.0/12, scenarios[0].Probability, 1e-12)
	assert.InDelta(t, 11.0/12, scenarios[1].Probability, 1e-12)
	assert.InDelta(t, 1.0, probabilitySum(scenarios), 1e-12)

	// trajectories average the undampened values
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0}, scenarios[0].Trajectory, 1e-12)
	assert.InDelta(t, 18.0, scenarios[1].Trajectory[0], 1e-12)
}

func TestCreateScenariosRecut(t *testing.T) {
	// even-weight corners of the [0, 2]^4 cube stay more than horizon/2
	// apart and are never extreme, so only a wider cut can merge them
	corners := [][]float64{
		{0, 0, 0, 0}, {1, 1, 0, 0}, {1, 0, 1, 0}, {1, 0, 0, 1},
		{0, 1, 1, 0}, {0, 1, 0, 1}, {0, 0, 1, 1}, {1, 1, 1, 1},
	}
	columns := map[string][]float64{}
	for i, c := range corners {
		tail := make([]float64, len(c))
		for j, b := range c {
			tail[j] = 10 * b
		}
		columns[fmt.Sprintf("c%d", i)] = riseThen(tail...)
	}
	fd := scannedFinder(t, columns)
	require.Len(t, fd.Matches(), 8)

	scenarios, err := fd.CreateScenarios(4, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(scenarios), MaxScenarios)
	assert.InDelta(t, 1.0, probabilitySum(scenarios), 1e-12)

	members := 0
	for _, s := range scenarios {
		members += len(s.Members)
		assert.Greater(t, s.Probability, 0.0)
	}
	assert.Equal(t, 8, members)
}

func TestCreateScenariosPredict(t *testing.T) {
	columns := map[string][]float64{}
	for i := 0; i < 12; i++ {
		c := float64(15 * i)
		columns[fmt.Sprintf("s%02d", i)] = riseThen(c, c, c, c)
	}
	fd := scannedFinder(t, columns)

	scenarios, err := fd.CreateScenariosPredict(4)
	require.NoError(t, err)
	// no dampening: every continuation is its own scenario
	assert.Len(t, scenarios, 12)
	assert.InDelta(t, 1.0, probabilitySum(scenarios), 1e-12)
	for _, s := range scenarios {
		assert.Nil(t, s.Members)
	}
}

func TestCreateScenariosNoContinuations(t *testing.T) {
	fd := scannedFinder(t, map[string][]float64{"p": periodic()})
	scenarios, err := fd.CreateScenarios(100, nil)
	require.NoError(t, err)
	assert.Empty(t, scenarios)
}

func TestDampen(t *testing.T) {
	obs := [][]float64{{0, 1, 2}, {0, 2.5, 1}}
	out := dampen(obs)
	assert.Equal(t, []float64{0, 1, 2}, out[0])
	assert.Equal(t, []float64{10, 10, 10}, out[1])
	assert.Equal(t, []float64{0, 2.5, 1}, obs[1])
}
