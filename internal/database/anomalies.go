// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/metrics"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// SaveAnomalyResults stores the results of one detection run. A record keeps
// only its latest result: rerunning detection replaces it.
func (db *DB) SaveAnomalyResults(ctx context.Context, results []models.AnomalyResult) error {
	if len(results) == 0 {
		return nil
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.withConflictRetry(ctx, func() error {
		return db.saveAnomalyResultsTx(ctx, results)
	})
	metrics.RecordDBQuery("upsert", "anomaly_results", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to save anomaly results: %w", err)
	}
	return nil
}

func (db *DB) saveAnomalyResultsTx(ctx context.Context, results []models.AnomalyResult) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomaly_results (record_id, run_id, score, is_anomaly, scored, scored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			score = EXCLUDED.score,
			is_anomaly = EXCLUDED.is_anomaly,
			scored = EXCLUDED.scored,
			scored_at = EXCLUDED.scored_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare anomaly upsert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range results {
		r := &results[i]
		if _, err = stmt.ExecContext(ctx,
			r.RecordID.String(), r.RunID.String(), r.Score, r.IsAnomaly, r.Scored, r.ScoredAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to upsert result for %s: %w", r.RecordID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetAnomalyResults returns the records matching f that have a stored
// detection result, each annotated with that result. Set f.FlaggedOnly to
// keep only flagged records.
func (db *DB) GetAnomalyResults(ctx context.Context, f RecordFilter) ([]models.EnrichedRecord, error) {
	f.withResults = true
	return db.Query(ctx, f)
}
