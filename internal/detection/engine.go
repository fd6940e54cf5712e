// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/models"
)

var (
	// ErrInsufficientData means no record had every selected feature, so
	// no model could be fitted.
	ErrInsufficientData = errors.New("insufficient data: no records have all selected features")

	// ErrInvalidConfig wraps rejected detection settings.
	ErrInvalidConfig = errors.New("invalid detection config")
)

// autoThreshold flags scores above it when no contamination is given.
const autoThreshold = 0.5

// Config controls one detection run.
type Config struct {
	// Contamination is the expected share of anomalies in (0, 0.5]. Nil
	// selects auto mode.
	Contamination *float64 `json:"contamination,omitempty"`
	RandomSeed    int64    `json:"random_seed"`
	FeatureSet    []string `json:"feature_set,omitempty"`
	NumTrees      int      `json:"num_trees,omitempty"`
	SampleSize    int      `json:"sample_size,omitempty"`
}

// ConfigFromSettings converts loaded settings to run defaults.
func ConfigFromSettings(cfg config.DetectionConfig) Config {
	c := Config{
		RandomSeed: cfg.RandomSeed,
		FeatureSet: append([]string(nil), cfg.FeatureSet...),
		NumTrees:   cfg.NumTrees,
		SampleSize: cfg.SampleSize,
	}
	if cfg.Contamination > 0 {
		contamination := cfg.Contamination
		c.Contamination = &contamination
	}
	return c
}

func (c Config) normalize() (Config, []Feature, error) {
	if c.Contamination != nil {
		v := *c.Contamination
		if math.IsNaN(v) || v <= 0 || v > 0.5 {
			return c, nil, fmt.Errorf("%w: contamination %v must be in (0, 0.5]", ErrInvalidConfig, v)
		}
	}
	if c.NumTrees <= 0 {
		c.NumTrees = 100
	}
	if c.SampleSize <= 0 {
		c.SampleSize = 256
	}
	features, err := ParseFeatureSet(c.FeatureSet)
	if err != nil {
		return c, nil, err
	}
	return c, features, nil
}

// Outcome is the result of scoring one set of records.
type Outcome struct {
	// Results has one entry per input record, in input order. RunID and
	// ScoredAt are left for the caller.
	Results   []models.AnomalyResult
	Threshold float64
	Scored    int
	Flagged   int
	Features  []Feature
}

// Engine fits and applies an isolation forest. It holds no state between
// runs.
type Engine struct{}

// NewEngine creates an engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Detect scores records and returns one result per record in input order.
func (e *Engine) Detect(records []models.EnrichedRecord, cfg Config) ([]models.AnomalyResult, error) {
	out, err := e.Evaluate(context.Background(), records, cfg)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Evaluate is Detect with cancellation and the run summary.
func (e *Engine) Evaluate(ctx context.Context, records []models.EnrichedRecord, cfg Config) (*Outcome, error) {
	cfg, features, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	matrix := buildFeatureMatrix(records, features)
	if len(matrix.rows) == 0 {
		return nil, ErrInsufficientData
	}

	var scaler StandardScaler
	scaled := scaler.FitTransform(matrix.rows)

	forest := NewIsolationForest(cfg.NumTrees, cfg.SampleSize, cfg.RandomSeed)
	if err := forest.Fit(ctx, scaled); err != nil {
		return nil, fmt.Errorf("failed to fit isolation forest: %w", err)
	}
	scores := forest.ScoreAll(scaled)

	threshold, flagged := applyThreshold(scores, cfg.Contamination)

	results := make([]models.AnomalyResult, len(records))
	for i := range records {
		results[i].RecordID = records[i].ID
	}
	for k, idx := range matrix.index {
		s := scores[k]
		results[idx].Score = &s
		results[idx].Scored = true
		results[idx].IsAnomaly = flagged[k]
	}

	nFlagged := 0
	for _, f := range flagged {
		if f {
			nFlagged++
		}
	}
	return &Outcome{
		Results:   results,
		Threshold: threshold,
		Scored:    len(scores),
		Flagged:   nFlagged,
		Features:  features,
	}, nil
}

// applyThreshold decides which scores are flagged. With a contamination c,
// k = ceil(c x n) and every score at or above the k-th highest is flagged,
// so ties at the cut-off may flag more than k. Without one, scores above
// 0.5 are flagged.
func applyThreshold(scores []float64, contamination *float64) (float64, []bool) {
	flagged := make([]bool, len(scores))
	if len(scores) == 0 {
		return 0, flagged
	}

	threshold := autoThreshold
	if contamination != nil {
		n := len(scores)
		// The epsilon keeps c x n from rounding up past an exact integer.
		k := int(math.Ceil(*contamination*float64(n) - 1e-9))
		if k < 1 {
			k = 1
		}
		if k > n {
			k = n
		}
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return scores[order[a]] > scores[order[b]]
		})
		threshold = scores[order[k-1]]
		for i, s := range scores {
			flagged[i] = s >= threshold
		}
		return threshold, flagged
	}

	for i, s := range scores {
		flagged[i] = s > threshold
	}
	return threshold, flagged
}
