// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package models defines the records, batches and results shared by the
// ingestion pipeline, the record store, the anomaly engine and the API.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Geolocation is the best-effort location of a source IP. Providers fill
// what they know; empty strings mean unknown.
type Geolocation struct {
	IPAddress string   `json:"ip_address"`
	Country   string   `json:"country"`
	State     string   `json:"state"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Provider  string   `json:"provider,omitempty"`
}

// EnrichedRecord is one IPDR session after mapping and enrichment.
//
// Every field sourced from the upload is a pointer: nil means the column was
// unmapped or the value could not be parsed. Derived fields are nil when
// their inputs are missing or a lookup failed. Records are immutable once
// persisted; anomaly annotations live in AnomalyResult.
type EnrichedRecord struct {
	ID        uuid.UUID `json:"id"`
	BatchID   uuid.UUID `json:"batch_id"`
	RowNumber int       `json:"row_number"`

	UserID          *string    `json:"user_id"`
	SourceIP        *string    `json:"source_ip"`
	DestinationIP   *string    `json:"destination_ip"`
	SourcePort      *int       `json:"source_port,omitempty"`
	DestinationPort *int       `json:"destination_port,omitempty"`
	Protocol        *string    `json:"protocol,omitempty"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	BytesSent       *int64     `json:"bytes_sent"`
	BytesReceived   *int64     `json:"bytes_received"`
	MSISDN          *string    `json:"msisdn,omitempty"`
	IMEI            *string    `json:"imei,omitempty"`
	IMSI            *string    `json:"imsi,omitempty"`
	CellID          *string    `json:"cell_id,omitempty"`

	Country   *string  `json:"country"`
	State     *string  `json:"state"`
	City      *string  `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	DestinationDomain *string `json:"destination_domain"`

	SessionDurationSeconds *float64 `json:"session_duration_seconds"`
	DataVolumeMB           *float64 `json:"data_volume_mb"`

	// Anomaly is populated by queries that join the latest detection run.
	Anomaly *AnomalyResult `json:"anomaly,omitempty"`
}

// ApplyGeolocation copies a lookup result onto the record. A nil geo leaves
// all location fields nil.
func (r *EnrichedRecord) ApplyGeolocation(geo *Geolocation) {
	if geo == nil {
		return
	}
	r.Country = nonEmpty(geo.Country)
	r.State = nonEmpty(geo.State)
	r.City = nonEmpty(geo.City)
	r.Latitude = geo.Latitude
	r.Longitude = geo.Longitude
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UploadBatch identifies one ingestion run. Deleting it removes every record
// it owns and their anomaly results.
type UploadBatch struct {
	ID                 uuid.UUID `json:"id"`
	FileName           string    `json:"file_name"`
	UploadedBy         string    `json:"uploaded_by"`
	UploadedAt         time.Time `json:"uploaded_at"`
	RowCount           int       `json:"row_count"`
	EnrichmentFailures int       `json:"enrichment_failures"`
}

// AnomalyResult is the outcome of one detection run for one record.
// Score is nil and IsAnomaly false for records that could not be scored
// because a required feature was missing.
type AnomalyResult struct {
	RecordID  uuid.UUID `json:"record_id"`
	RunID     uuid.UUID `json:"run_id"`
	Score     *float64  `json:"score"`
	IsAnomaly bool      `json:"is_anomaly"`
	Scored    bool      `json:"scored"`
	ScoredAt  time.Time `json:"scored_at"`
}
