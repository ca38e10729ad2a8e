package cluster

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNoObservations indicates clustering of an empty set
	ErrNoObservations = errors.New("cluster: no observations")

	// ErrDimensionMismatch indicates observations of different lengths
	ErrDimensionMismatch = errors.New("cluster: observations must have equal length")
)

// Merge is one agglomeration step. A and B are cluster ids: ids below the
// observation count are singletons, id n+k is the cluster formed at step k.
type Merge struct {
	A, B     int
	Distance float64
	Size     int
}

// Linkage is the full agglomeration tree of a set of observations
type Linkage struct {
	N      int
	Merges []Merge
}

// Ward builds a minimum-variance linkage over Euclidean distances
func Ward(obs [][]float64) (*Linkage, error) {
	n := len(obs)
	if n == 0 {
		return nil, ErrNoObservations
	}
	for i := 1; i < n; i++ {
		if len(obs[i]) != len(obs[0]) {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(obs[i]), len(obs[0]))
		}
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			d := floats.Distance(obs[i], obs[j], 2)
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	size := make([]int, n)
	id := make([]int, n) // cluster id held by each slot
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		id[i] = i
		active[i] = true
	}

	l := &Linkage{N: n, Merges: make([]Merge, 0, n-1)}
	for step := 0; step < n-1; step++ {
		a, b := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, a, b = dist[i][j], i, j
				}
			}
		}

		merged := size[a] + size[b]
		lo, hi := id[a], id[b]
		if lo > hi {
			lo, hi = hi, lo
		}
		l.Merges = append(l.Merges, Merge{A: lo, B: hi, Distance: best, Size: merged})

		// Lance-Williams update for Ward on unsquared distances
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			t := float64(size[a] + size[b] + size[k])
			sq := (float64(size[a]+size[k])*dist[a][k]*dist[a][k] +
				float64(size[b]+size[k])*dist[b][k]*dist[b][k] -
				float64(size[k])*best*best) / t
			d := math.Sqrt(math.Max(sq, 0))
			dist[a][k] = d
			dist[k][a] = d
		}

		size[a] = merged
		id[a] = n + step
		active[b] = false
	}

	return l, nil
}

// Cut assigns flat cluster labels so that every merge at distance <= t is
// joined. Labels are 0-based, numbered in order of each cluster's first member.
func (l *Linkage) Cut(t float64) []int {
	parent := make([]int, 2*l.N-1)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for k, m := range l.Merges {
		if m.Distance > t {
			// ward heights never decrease
			break
		}
		node := l.N + k
		parent[find(m.A)] = node
		parent[find(m.B)] = node
	}

	labels := make([]int, l.N)
	seen := make(map[int]int)
	for i := range labels {
		root := find(i)
		label, ok := seen[root]
		if !ok {
			label = len(seen)
			seen[root] = label
		}
		labels[i] = label
	}
	return labels
}

// NumClusters returns the number of flat clusters a cut at t produces
func (l *Linkage) NumClusters(t float64) int {
	n := l.N
	for _, m := range l.Merges {
		if m.Distance > t {
			break
		}
		n--
	}
	return n
}

// CutLabels is a shortcut for Ward followed by Cut
func CutLabels(obs [][]float64, t float64) ([]int, int, error) {
	l, err := Ward(obs)
	if err != nil {
		return nil, 0, err
	}
	return l.Cut(t), l.NumClusters(t), nil
}
