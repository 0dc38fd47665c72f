package outlier

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	defaultTrees      = 100
	defaultSampleSize = 256

	// Euler-Mascheroni constant, used in the average path length estimate.
	eulerGamma = 0.5772156649015329
)

// IsolationForest detects outliers by how few random partitioning splits
// are needed to isolate a record: easy-to-isolate records score higher.
// Deterministic for a fixed seed and input batch.
type IsolationForest struct {
	trees      int
	sampleSize int
	seed       int64

	roots []*isoNode
	norm  float64 // c(sampleSize), normalizes path lengths
}

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int // leaf population; inner nodes keep 0
	leaf    bool
}

// NewIsolationForest creates a forest with the standard ensemble size.
func NewIsolationForest(seed int64) *IsolationForest {
	return &IsolationForest{
		trees:      defaultTrees,
		sampleSize: defaultSampleSize,
		seed:       seed,
	}
}

// Fit builds the ensemble of random partitioning trees over the data.
func (f *IsolationForest) Fit(data [][]float64) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot fit on empty data")
	}
	dims := len(data[0])
	for i := range data {
		if len(data[i]) != dims {
			return fmt.Errorf("row %d has %d features, want %d", i, len(data[i]), dims)
		}
	}

	n := len(data)
	sample := f.sampleSize
	if sample > n {
		sample = n
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sample)))) + 1

	rng := rand.New(rand.NewSource(f.seed))
	f.roots = make([]*isoNode, f.trees)
	for t := 0; t < f.trees; t++ {
		idx := rng.Perm(n)[:sample]
		f.roots[t] = buildTree(data, idx, 0, heightLimit, rng)
	}
	f.norm = avgPathLength(sample)
	return nil
}

// Scores returns the ensemble anomaly score per row in (0, 1].
func (f *IsolationForest) Scores(data [][]float64) ([]float64, error) {
	if f.roots == nil {
		return nil, fmt.Errorf("forest is not fitted")
	}

	scores := make([]float64, len(data))
	for i, row := range data {
		var sum float64
		for _, root := range f.roots {
			sum += pathLength(root, row, 0)
		}
		mean := sum / float64(len(f.roots))
		scores[i] = math.Exp2(-mean / f.norm)
	}
	return scores, nil
}

func buildTree(data [][]float64, idx []int, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(idx) <= 1 {
		return &isoNode{leaf: true, size: len(idx)}
	}

	// Candidate features are those with a non-degenerate value range.
	dims := len(data[idx[0]])
	var candidates []int
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	for d := 0; d < dims; d++ {
		lo[d], hi[d] = data[idx[0]][d], data[idx[0]][d]
		for _, i := range idx[1:] {
			v := data[i][d]
			if v < lo[d] {
				lo[d] = v
			}
			if v > hi[d] {
				hi[d] = v
			}
		}
		if hi[d] > lo[d] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{leaf: true, size: len(idx)}
	}

	d := candidates[rng.Intn(len(candidates))]
	split := lo[d] + rng.Float64()*(hi[d]-lo[d])

	var left, right []int
	for _, i := range idx {
		if data[i][d] < split {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{leaf: true, size: len(idx)}
	}

	return &isoNode{
		feature: d,
		split:   split,
		left:    buildTree(data, left, depth+1, limit, rng),
		right:   buildTree(data, right, depth+1, limit, rng),
	}
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	if node.leaf {
		return float64(depth) + avgPathLength(node.size)
	}
	if row[node.feature] < node.split {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLength is c(n): the expected path length of an unsuccessful
// search in a binary search tree of n nodes.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		h := math.Log(float64(n-1)) + eulerGamma
		return 2*h - 2*float64(n-1)/float64(n)
	}
}
