// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/metrics"
	"github.com/tomtom215/ipdrlens/internal/models"
)

const selectBatchSQL = `SELECT id::VARCHAR, file_name, uploaded_by, uploaded_at, row_count, enrichment_failures
	FROM upload_batches`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(s rowScanner) (models.UploadBatch, error) {
	var (
		b  models.UploadBatch
		id string
	)
	if err := s.Scan(&id, &b.FileName, &b.UploadedBy, &b.UploadedAt, &b.RowCount, &b.EnrichmentFailures); err != nil {
		return b, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return b, fmt.Errorf("invalid batch id %q: %w", id, err)
	}
	b.ID = parsed
	return b, nil
}

// ListBatches returns every batch, newest first.
func (db *DB) ListBatches(ctx context.Context) ([]models.UploadBatch, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, selectBatchSQL+` ORDER BY uploaded_at DESC, id`)
	metrics.RecordDBQuery("select", "upload_batches", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []models.UploadBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

// GetBatch returns one batch or ErrBatchNotFound.
func (db *DB) GetBatch(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectBatchSQL+` WHERE id = CAST(? AS UUID)`, id.String())
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &b, nil
}

// DeleteBatch removes a batch, its records and their anomaly results in one
// transaction and returns the number of records removed. Deleting an
// unknown batch is a no-op that returns 0.
func (db *DB) DeleteBatch(ctx context.Context, id uuid.UUID) (int64, error) {
	unlock := db.lockBatch(id.String())
	defer unlock()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var removed int64
	start := time.Now()
	err := db.withConflictRetry(ctx, func() error {
		n, err := db.deleteBatchTx(ctx, id)
		removed = n
		return err
	})
	metrics.RecordDBQuery("delete", "upload_batches", time.Since(start), err)
	if err != nil {
		return 0, &PersistenceError{BatchID: id, Op: "delete", Err: err}
	}

	logging.Ctx(ctx).Info().
		Str("batch_id", id.String()).
		Int64("records", removed).
		Msg("Batch deleted")
	return removed, nil
}

func (db *DB) deleteBatchTx(ctx context.Context, id uuid.UUID) (removed int64, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	bid := id.String()
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM anomaly_results WHERE record_id IN (
			SELECT id FROM ipdr_records WHERE batch_id = CAST(? AS UUID))`, bid); err != nil {
		return 0, fmt.Errorf("failed to delete anomaly results: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM ipdr_records WHERE batch_id = CAST(? AS UUID)`, bid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	if removed, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to count deleted records: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM upload_batches WHERE id = CAST(? AS UUID)`, bid); err != nil {
		return 0, fmt.Errorf("failed to delete batch: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}
