// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package detection

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{256, 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0},
	}
	for _, tt := range tests {
		if got := averagePathLength(tt.n); !approx(got, tt.want) {
			t.Errorf("averagePathLength(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestIsolationForest_OutlierScoresHigher(t *testing.T) {
	data := make([][]float64, 0, 101)
	for i := 0; i < 100; i++ {
		data = append(data, []float64{float64(i % 10), float64(i % 7)})
	}
	data = append(data, []float64{100, 100})

	f := NewIsolationForest(100, 256, 42)
	if err := f.Fit(context.Background(), data); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if f.sampleSize != len(data) {
		t.Errorf("sampleSize = %d, want clamp to %d", f.sampleSize, len(data))
	}
	if f.maxDepth != 7 {
		t.Errorf("maxDepth = %d, want 7", f.maxDepth)
	}

	scores := f.ScoreAll(data)
	outlier := scores[len(scores)-1]
	for i, s := range scores[:100] {
		if s >= outlier {
			t.Fatalf("scores[%d] = %v, want below outlier score %v", i, s, outlier)
		}
	}
}

func TestIsolationForest_ConstantData(t *testing.T) {
	data := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}

	f := NewIsolationForest(10, 256, 1)
	if err := f.Fit(context.Background(), data); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	for _, tree := range f.trees {
		if !tree.isLeaf || tree.size != 4 {
			t.Fatalf("tree = %+v, want single leaf of size 4", tree)
		}
	}
	// Path is c(4) at the root leaf, so every score is exactly 0.5.
	if got := f.Score(data[0]); !approx(got, 0.5) {
		t.Errorf("Score() = %v, want 0.5", got)
	}
}

func TestIsolationForest_Unfitted(t *testing.T) {
	f := NewIsolationForest(10, 256, 1)
	if got := f.Score([]float64{1}); got != 0.5 {
		t.Errorf("Score() = %v, want 0.5", got)
	}
}

func TestIsolationForest_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewIsolationForest(10, 256, 1)
	err := f.Fit(ctx, [][]float64{{1}, {2}, {3}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fit() error = %v, want context.Canceled", err)
	}
}

func TestStandardScaler(t *testing.T) {
	rows := [][]float64{{1, 7}, {2, 7}, {3, 7}}

	var s StandardScaler
	out := s.FitTransform(rows)

	sd := math.Sqrt(2.0 / 3.0)
	want := [][]float64{{-1 / sd, 0}, {0, 0}, {1 / sd, 0}}
	for i := range want {
		for j := range want[i] {
			if !approx(out[i][j], want[i][j]) {
				t.Errorf("out[%d][%d] = %v, want %v", i, j, out[i][j], want[i][j])
			}
		}
	}
	if rows[0][0] != 1 {
		t.Error("FitTransform() modified its input")
	}
}
