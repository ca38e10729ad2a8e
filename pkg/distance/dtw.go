package distance

import "math"

// dtw returns sqrt of the minimal accumulated squared cost over all warping
// paths between a and b. Two rolling rows keep memory at O(len(b)).
func dtw(a, b []float64) float64 {
	m := len(b)
	prev := make([]float64, m+1)
	curr := make([]float64, m+1)

	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= len(a); i++ {
		curr[0] = math.Inf(1)
		for j := 1; j <= m; j++ {
			d := a[i-1] - b[j-1]
			best := prev[j-1]
			if prev[j] < best {
				best = prev[j]
			}
			if curr[j-1] < best {
				best = curr[j-1]
			}
			curr[j] = d*d + best
		}
		prev, curr = curr, prev
	}

	return math.Sqrt(prev[m])
}
