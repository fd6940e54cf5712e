// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/metrics"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// RecordStore is the part of the record store a detection run needs.
type RecordStore interface {
	Query(ctx context.Context, f database.RecordFilter) ([]models.EnrichedRecord, error)
	SaveAnomalyResults(ctx context.Context, results []models.AnomalyResult) error
}

// RunSummary describes one detection run.
type RunSummary struct {
	RunID         uuid.UUID                       `json:"run_id"`
	Records       int                             `json:"records"`
	Scored        int                             `json:"scored"`
	Flagged       int                             `json:"flagged"`
	Threshold     float64                         `json:"threshold"`
	Contamination *float64                        `json:"contamination"`
	Features      []Feature                       `json:"features"`
	DurationMs    int64                           `json:"duration_ms"`
	Results       map[string]models.AnomalyResult `json:"results"`
}

// Service runs detection over stored records and persists the results.
type Service struct {
	store    RecordStore
	engine   *Engine
	defaults Config
}

// NewService creates a detection service with run defaults.
func NewService(store RecordStore, defaults Config) *Service {
	return &Service{
		store:    store,
		engine:   NewEngine(),
		defaults: defaults,
	}
}

// Defaults returns a copy of the run defaults for callers to override.
func (s *Service) Defaults() Config {
	c := s.defaults
	c.FeatureSet = append([]string(nil), s.defaults.FeatureSet...)
	if s.defaults.Contamination != nil {
		v := *s.defaults.Contamination
		c.Contamination = &v
	}
	return c
}

// Run scores the records matching scope and stores one result per record,
// replacing earlier results for those records. Pagination in scope is
// ignored: a run always covers every matching record.
func (s *Service) Run(ctx context.Context, scope database.RecordFilter, cfg Config) (*RunSummary, error) {
	start := time.Now()
	scope.Limit, scope.Offset = 0, 0

	summary, err := s.run(ctx, scope, cfg)
	duration := time.Since(start)

	outcome := "success"
	flagged := 0
	switch {
	case errors.Is(err, ErrInsufficientData):
		outcome = "insufficient_data"
	case errors.Is(err, ErrInvalidConfig):
		outcome = "invalid_config"
	case err != nil:
		outcome = "error"
	default:
		flagged = summary.Flagged
		summary.DurationMs = duration.Milliseconds()
	}
	metrics.RecordDetection(outcome, flagged, duration)

	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("run_id", summary.RunID.String()).
		Int("records", summary.Records).
		Int("scored", summary.Scored).
		Int("flagged", summary.Flagged).
		Float64("threshold", summary.Threshold).
		Dur("duration", duration).
		Msg("Detection run complete")
	return summary, nil
}

func (s *Service) run(ctx context.Context, scope database.RecordFilter, cfg Config) (*RunSummary, error) {
	records, err := s.store.Query(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out, err := s.engine.Evaluate(ctx, records, cfg)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	now := time.Now().UTC()
	results := make(map[string]models.AnomalyResult, len(out.Results))
	for i := range out.Results {
		out.Results[i].RunID = runID
		out.Results[i].ScoredAt = now
		results[out.Results[i].RecordID.String()] = out.Results[i]
	}

	if err := s.store.SaveAnomalyResults(ctx, out.Results); err != nil {
		return nil, fmt.Errorf("failed to save anomaly results: %w", err)
	}

	return &RunSummary{
		RunID:         runID,
		Records:       len(records),
		Scored:        out.Scored,
		Flagged:       out.Flagged,
		Threshold:     out.Threshold,
		Contamination: cfg.Contamination,
		Features:      out.Features,
		Results:       results,
	}, nil
}
