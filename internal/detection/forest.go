// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package detection

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const eulerGamma = 0.5772156649

// isolationTree is one node of a tree. Leaves carry the number of training
// points that reached them.
type isolationTree struct {
	splitFeature int
	splitValue   float64
	left, right  *isolationTree
	size         int
	isLeaf       bool
}

// IsolationForest is an ensemble of random isolation trees. Anomalies are
// isolated in fewer splits, so a short average path means a high score.
type IsolationForest struct {
	trees      []*isolationTree
	numTrees   int
	sampleSize int
	maxDepth   int
	seed       int64
}

// NewIsolationForest returns an unfitted forest.
func NewIsolationForest(numTrees, sampleSize int, seed int64) *IsolationForest {
	return &IsolationForest{
		numTrees:   numTrees,
		sampleSize: sampleSize,
		seed:       seed,
	}
}

// Fit builds the trees. Tree i draws from its own generator seeded with
// seed+i, so trees build concurrently with the same result as sequentially.
func (f *IsolationForest) Fit(ctx context.Context, data [][]float64) error {
	if len(data) == 0 {
		f.trees = nil
		return nil
	}
	if f.sampleSize > len(data) || f.sampleSize <= 0 {
		f.sampleSize = len(data)
	}
	f.maxDepth = int(math.Ceil(math.Log2(float64(f.sampleSize))))

	f.trees = make([]*isolationTree, f.numTrees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < f.numTrees; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(f.seed + int64(i))) //nolint:gosec // G404: model sampling, not security
			f.trees[i] = f.buildTree(rng, sample(rng, data, f.sampleSize), 0)
			return nil
		})
	}
	return g.Wait()
}

// sample draws n rows without replacement using a partial Fisher-Yates
// shuffle of the row indices.
func sample(rng *rand.Rand, data [][]float64, n int) [][]float64 {
	idx := make([]int, len(data))
	for i := range idx {
		idx[i] = i
	}
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		j := i + rng.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = data[idx[i]]
	}
	return out
}

func (f *IsolationForest) buildTree(rng *rand.Rand, data [][]float64, depth int) *isolationTree {
	if len(data) <= 1 || depth >= f.maxDepth {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	// Only features that vary within the node can split it.
	numFeatures := len(data[0])
	candidates := make([]int, 0, numFeatures)
	mins := make([]float64, numFeatures)
	maxs := make([]float64, numFeatures)
	for j := 0; j < numFeatures; j++ {
		mins[j], maxs[j] = featureRange(data, j)
		if maxs[j] > mins[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	feature := candidates[rng.Intn(len(candidates))]
	split := mins[feature] + rng.Float64()*(maxs[feature]-mins[feature])

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isolationTree{size: len(data), isLeaf: true}
	}

	return &isolationTree{
		splitFeature: feature,
		splitValue:   split,
		left:         f.buildTree(rng, left, depth+1),
		right:        f.buildTree(rng, right, depth+1),
		size:         len(data),
	}
}

func featureRange(data [][]float64, j int) (lo, hi float64) {
	lo, hi = data[0][j], data[0][j]
	for _, row := range data[1:] {
		if row[j] < lo {
			lo = row[j]
		}
		if row[j] > hi {
			hi = row[j]
		}
	}
	return lo, hi
}

func (f *IsolationForest) pathLength(t *isolationTree, point []float64, depth int) float64 {
	for !t.isLeaf {
		if point[t.splitFeature] < t.splitValue {
			t = t.left
		} else {
			t = t.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(t.size)
}

// Score returns the anomaly score in [0, 1] of one point. An unfitted forest
// or one fitted on a single row scores everything 0.5.
func (f *IsolationForest) Score(point []float64) float64 {
	c := averagePathLength(f.sampleSize)
	if len(f.trees) == 0 || c == 0 {
		return 0.5
	}
	var total float64
	for _, t := range f.trees {
		total += f.pathLength(t, point, 0)
	}
	avg := total / float64(len(f.trees))
	return math.Pow(2, -avg/c)
}

// ScoreAll scores every row in order.
func (f *IsolationForest) ScoreAll(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, row := range data {
		scores[i] = f.Score(row)
	}
	return scores
}

// averagePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n nodes.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
