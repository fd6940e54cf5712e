// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/database/query"
	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/metrics"
	"github.com/tomtom215/ipdrlens/internal/models"
)

const insertRecordSQL = `INSERT INTO ipdr_records (
	id, batch_id, row_number,
	user_id, source_ip, destination_ip, source_port, destination_port, protocol,
	start_time, end_time, bytes_sent, bytes_received,
	msisdn, imei, imsi, cell_id,
	country, state, city, latitude, longitude, destination_domain,
	session_duration_seconds, data_volume_mb
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Persist writes a batch row and all of its records in one transaction.
//
// Calls for the same batch id are serialized; calls for different batches
// run in parallel. Transaction conflicts are retried. On failure the
// transaction is rolled back and a *PersistenceError is returned, leaving
// no trace of the batch.
func (db *DB) Persist(ctx context.Context, batch *models.UploadBatch, records []models.EnrichedRecord) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.UploadedAt.IsZero() {
		batch.UploadedAt = time.Now().UTC()
	}
	batch.RowCount = len(records)

	unlock := db.lockBatch(batch.ID.String())
	defer unlock()

	ctx, cancel := ensureContext(ctx)
	defer cancel()

	start := time.Now()
	err := db.withConflictRetry(ctx, func() error {
		return db.persistTx(ctx, batch, records)
	})
	metrics.RecordDBQuery("persist", "ipdr_records", time.Since(start), err)
	if err != nil {
		return &PersistenceError{BatchID: batch.ID, Op: "write", Err: err}
	}

	logging.Ctx(ctx).Debug().
		Str("batch_id", batch.ID.String()).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Batch persisted")
	return nil
}

func (db *DB) persistTx(ctx context.Context, batch *models.UploadBatch, records []models.EnrichedRecord) (err error) {
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

	_, err = tx.ExecContext(ctx,
		`INSERT INTO upload_batches (id, file_name, uploaded_by, uploaded_at, row_count, enrichment_failures)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID.String(), batch.FileName, batch.UploadedBy, batch.UploadedAt.UTC(), batch.RowCount, batch.EnrichmentFailures)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for i := range records {
		r := &records[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.BatchID = batch.ID

		if _, err = stmt.ExecContext(ctx,
			r.ID.String(), r.BatchID.String(), r.RowNumber,
			r.UserID, r.SourceIP, r.DestinationIP, r.SourcePort, r.DestinationPort, r.Protocol,
			utcPtr(r.StartTime), utcPtr(r.EndTime), r.BytesSent, r.BytesReceived,
			r.MSISDN, r.IMEI, r.IMSI, r.CellID,
			r.Country, r.State, r.City, r.Latitude, r.Longitude, r.DestinationDomain,
			r.SessionDurationSeconds, r.DataVolumeMB,
		); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", r.RowNumber, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

const selectRecordColumns = `
	r.id::VARCHAR, r.batch_id::VARCHAR, r.row_number,
	r.user_id, r.source_ip, r.destination_ip, r.source_port, r.destination_port, r.protocol,
	r.start_time, r.end_time, r.bytes_sent, r.bytes_received,
	r.msisdn, r.imei, r.imsi, r.cell_id,
	r.country, r.state, r.city, r.latitude, r.longitude, r.destination_domain,
	r.session_duration_seconds, r.data_volume_mb,
	a.run_id::VARCHAR, a.score, a.is_anomaly, a.scored, a.scored_at`

// Query returns the records matching f ordered by start_time then id, each
// annotated with its latest anomaly result when one exists. No match is an
// empty slice, not an error.
func (db *DB) Query(ctx context.Context, f RecordFilter) ([]models.EnrichedRecord, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	where, args := f.where()
	q := fmt.Sprintf(`SELECT %s
		FROM ipdr_records r
		LEFT JOIN anomaly_results a ON a.record_id = r.id
		%s
		ORDER BY r.start_time ASC NULLS LAST, r.id ASC`, selectRecordColumns, where)

	q, pageArgs := query.Paginate(q, f.Limit, f.Offset)
	args = append(args, pageArgs...)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, q, args...)
	metrics.RecordDBQuery("query", "ipdr_records", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []models.EnrichedRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (models.EnrichedRecord, error) {
	var (
		r                 models.EnrichedRecord
		id, batchID       string
		runID             sql.NullString
		score             sql.NullFloat64
		isAnomaly, scored sql.NullBool
		scoredAt          sql.NullTime
	)
	err := rows.Scan(
		&id, &batchID, &r.RowNumber,
		&r.UserID, &r.SourceIP, &r.DestinationIP, &r.SourcePort, &r.DestinationPort, &r.Protocol,
		&r.StartTime, &r.EndTime, &r.BytesSent, &r.BytesReceived,
		&r.MSISDN, &r.IMEI, &r.IMSI, &r.CellID,
		&r.Country, &r.State, &r.City, &r.Latitude, &r.Longitude, &r.DestinationDomain,
		&r.SessionDurationSeconds, &r.DataVolumeMB,
		&runID, &score, &isAnomaly, &scored, &scoredAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan record: %w", err)
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return r, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	if r.BatchID, err = uuid.Parse(batchID); err != nil {
		return r, fmt.Errorf("invalid batch id %q: %w", batchID, err)
	}

	if runID.Valid {
		res := &models.AnomalyResult{
			RecordID:  r.ID,
			IsAnomaly: isAnomaly.Bool,
			Scored:    scored.Bool,
			ScoredAt:  scoredAt.Time,
		}
		res.RunID, _ = uuid.Parse(runID.String)
		if score.Valid {
			s := score.Float64
			res.Score = &s
		}
		r.Anomaly = res
	}
	return r, nil
}

// CountRecords returns the number of stored records.
func (db *DB) CountRecords(ctx context.Context) (int64, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM ipdr_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
