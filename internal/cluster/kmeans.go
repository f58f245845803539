// Package cluster groups enriched records with seeded k-means.
package cluster

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/model"
)

// Defaults applied by New.
const (
	DefaultMaxIterations = 300
	DefaultNInit         = 10
)

// Config tunes the engine. Identical inputs and Config always produce
// identical assignments.
type Config struct {
	Seed          uint64
	Scaling       Scaling
	MaxIterations int
	NInit         int
}

// Engine runs k-means over the record feature vectors.
type Engine struct {
	cfg Config
}

// New creates an Engine. Zero-valued fields take defaults.
func New(cfg Config) *Engine {
	if cfg.Scaling == "" {
		cfg.Scaling = ScalingZScore
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.NInit <= 0 {
		cfg.NInit = DefaultNInit
	}
	return &Engine{cfg: cfg}
}

// Cluster assigns each record a cluster id in [0, k). Output order matches
// input order. Cluster ids are numbered by first appearance.
func (e *Engine) Cluster(records []model.EnrichedRecord, k int) ([]model.ClusterAssignment, error) {
	if k < 1 {
		return nil, eris.Wrapf(model.ErrInvalidParameter, "cluster: k must be at least 1, got %d", k)
	}
	if len(records) < k {
		return nil, eris.Wrapf(model.ErrInsufficientData, "cluster: %d records for %d clusters", len(records), k)
	}

	rows := features(records)
	scale(rows, e.cfg.Scaling)

	var (
		best        []int
		bestInertia = math.Inf(1)
		bestRun     int
	)
	for run := 0; run < e.cfg.NInit; run++ {
		rng := rand.New(rand.NewPCG(e.cfg.Seed, uint64(run)))
		labels, inertia := lloyd(rows, seedCenters(rows, k, rng), e.cfg.MaxIterations)
		if inertia < bestInertia {
			best, bestInertia, bestRun = labels, inertia, run
		}
	}

	labels := canonicalize(best)
	zap.L().Debug("cluster: k-means complete",
		zap.Int("records", len(records)),
		zap.Int("k", k),
		zap.Float64("inertia", bestInertia),
		zap.Int("best_run", bestRun),
		zap.String("scaling", string(e.cfg.Scaling)),
	)

	out := make([]model.ClusterAssignment, len(records))
	for i, r := range records {
		out[i] = model.ClusterAssignment{EnrichedRecord: r, ClusterID: labels[i]}
	}
	return out, nil
}

// seedCenters picks k initial centers with k-means++.
func seedCenters(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(rows[rng.IntN(n)]))

	d2 := make([]float64, n)
	for i := range d2 {
		d2[i] = math.Inf(1)
	}
	for len(centers) < k {
		last := centers[len(centers)-1]
		var sum float64
		for i, r := range rows {
			d2[i] = math.Min(d2[i], sqDist(r, last))
			sum += d2[i]
		}

		next := rng.IntN(n)
		if sum > 0 {
			target := rng.Float64() * sum
			var acc float64
			for i, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		centers = append(centers, clone(rows[next]))
	}
	return centers
}

// lloyd iterates assignment and update steps until labels stop changing or
// maxIter is reached. It returns the labels and their inertia.
func lloyd(rows [][]float64, centers [][]float64, maxIter int) ([]int, float64) {
	n, k := len(rows), len(centers)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := assign(rows, centers, labels)
		if !changed && iter > 0 {
			break
		}

		sizes := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(rows[0]))
		}
		for i, r := range rows {
			c := labels[i]
			sizes[c]++
			for j, v := range r {
				sums[c][j] += v
			}
		}

		used := map[int]bool{}
		for c := 0; c < k; c++ {
			if sizes[c] == 0 {
				// Re-seed an empty cluster at the point farthest from its center.
				if far := farthest(rows, centers, labels, used); far >= 0 {
					used[far] = true
					centers[c] = clone(rows[far])
				}
				continue
			}
			for j := range sums[c] {
				centers[c][j] = sums[c][j] / float64(sizes[c])
			}
		}
	}

	assign(rows, centers, labels)
	var inertia float64
	for i, r := range rows {
		inertia += sqDist(r, centers[labels[i]])
	}
	return labels, inertia
}

// assign moves each row to its nearest center, lowest index on ties, and
// reports whether any label changed.
func assign(rows [][]float64, centers [][]float64, labels []int) bool {
	changed := false
	for i, r := range rows {
		best, bestD := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(r, center); d < bestD {
				best, bestD = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

func farthest(rows [][]float64, centers [][]float64, labels []int, used map[int]bool) int {
	idx, maxD := -1, -1.0
	for i, r := range rows {
		if used[i] {
			continue
		}
		if d := sqDist(r, centers[labels[i]]); d > maxD {
			idx, maxD = i, d
		}
	}
	return idx
}

// canonicalize renumbers labels in order of first appearance.
func canonicalize(labels []int) []int {
	mapping := map[int]int{}
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		out[i] = id
	}
	return out
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
