package finder

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tunogya/shapecast/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dailyIndex(n int) []time.Time {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	index := make([]time.Time, n)
	for i := range index {
		index[i] = base.AddDate(0, 0, i)
	}
	return index
}

func denseFrame(t *testing.T, columns map[string][]float64) *model.Frame {
	t.Helper()
	n := 0
	for _, v := range columns {
		n = max(n, len(v))
	}
	f, err := model.NewDenseFrame(dailyIndex(n), columns)
	require.NoError(t, err)
	return f
}

func mustShape(t *testing.T, values ...float64) *model.Shape {
	t.Helper()
	s, err := model.NewShape(values)
	require.NoError(t, err)
	return s
}

// periodic repeats a rise of six points and a fall of four, five times
func periodic() []float64 {
	cycle := []float64{0, 1, 2, 3, 4, 5, 4, 3, 2, 1}
	var out []float64
	for i := 0; i < 5; i++ {
		out = append(out, cycle...)
	}
	return out
}

func nan() float64 {
	return math.NaN()
}
