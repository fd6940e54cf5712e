// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package database

import "fmt"

// Relationships (batch -> records -> anomaly results) are enforced by the
// store's own cascade in DeleteBatch rather than FOREIGN KEY clauses:
// DuckDB checks foreign keys eagerly inside a transaction, which rejects a
// child-then-parent delete in one transaction.
var schemaStatements = []struct {
	name string
	sql  string
}{
	{"upload_batches", `
	CREATE TABLE IF NOT EXISTS upload_batches (
		id UUID PRIMARY KEY,
		file_name TEXT NOT NULL,
		uploaded_by TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMP NOT NULL,
		row_count INTEGER NOT NULL,
		enrichment_failures INTEGER NOT NULL DEFAULT 0
	);`},

	{"ipdr_records", `
	CREATE TABLE IF NOT EXISTS ipdr_records (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL,
		row_number INTEGER NOT NULL,

		user_id TEXT,
		source_ip TEXT,
		destination_ip TEXT,
		source_port INTEGER,
		destination_port INTEGER,
		protocol TEXT,
		start_time TIMESTAMP,
		end_time TIMESTAMP,
		bytes_sent BIGINT,
		bytes_received BIGINT,
		msisdn TEXT,
		imei TEXT,
		imsi TEXT,
		cell_id TEXT,

		country TEXT,
		state TEXT,
		city TEXT,
		latitude DOUBLE,
		longitude DOUBLE,
		destination_domain TEXT,

		session_duration_seconds DOUBLE,
		data_volume_mb DOUBLE
	);`},

	{"anomaly_results", `
	CREATE TABLE IF NOT EXISTS anomaly_results (
		record_id UUID PRIMARY KEY,
		run_id UUID NOT NULL,
		score DOUBLE,
		is_anomaly BOOLEAN NOT NULL DEFAULT false,
		scored BOOLEAN NOT NULL DEFAULT false,
		scored_at TIMESTAMP NOT NULL
	);`},
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create table %s: %w", stmt.name, err)
		}
	}
	return nil
}
