// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package models

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse wraps every HTTP response body.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"...","query_time_ms":12}}
//	{"status":"error","error":{"code":"MAPPING_ERROR","message":"..."},"metadata":{...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries a machine-readable code. Codes in use: VALIDATION_ERROR,
// MAPPING_ERROR, PARSE_ERROR, PERSISTENCE_ERROR, INSUFFICIENT_DATA,
// NOT_FOUND, INTERNAL_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// UploadSummary is returned by a successful upload.
type UploadSummary struct {
	BatchID            uuid.UUID         `json:"batch_id"`
	FileName           string            `json:"file_name"`
	RowCount           int               `json:"row_count"`
	EnrichmentFailures int               `json:"enrichment_failures"`
	GeoFailures        int               `json:"geo_failures"`
	ReverseDNSFailures int               `json:"reverse_dns_failures"`
	SkippedLookups     int               `json:"skipped_lookups"`
	Mapping            map[string]string `json:"mapping"`
	Unmapped           []string          `json:"unmapped,omitempty"`
	Ambiguous          []string          `json:"ambiguous,omitempty"`
	DerivedUserIDs     bool              `json:"derived_user_ids"`
	DurationMS         int64             `json:"duration_ms"`
}

// RecordKPIs are aggregates over one query result set.
type RecordKPIs struct {
	TotalSessions      int     `json:"total_sessions"`
	UniqueUsers        int     `json:"unique_users"`
	TotalDurationHours float64 `json:"total_duration_hours"`
	TotalVolumeMB      float64 `json:"total_volume_mb"`
	FlaggedAnomalies   int     `json:"flagged_anomalies"`
}

// RecordsResponse is the body of GET /api/v1/records.
type RecordsResponse struct {
	Records []EnrichedRecord `json:"records"`
	KPIs    RecordKPIs       `json:"kpis"`
}

// DetectionResponse is the body of POST /api/v1/detect. Results are keyed
// by record id. A nil Contamination means the run used the automatic
// threshold.
type DetectionResponse struct {
	RunID         uuid.UUID                `json:"run_id"`
	Records       int                      `json:"records"`
	Scored        int                      `json:"scored"`
	NotScored     int                      `json:"not_scored"`
	Flagged       int                      `json:"flagged"`
	Threshold     float64                  `json:"threshold"`
	Contamination *float64                 `json:"contamination"`
	Features      []string                 `json:"features"`
	DurationMS    int64                    `json:"duration_ms"`
	Results       map[string]AnomalyResult `json:"results"`
}

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected,omitempty"`
	SchemaVersion     int     `json:"schema_version,omitempty"`
	RecordCount       *int64  `json:"record_count,omitempty"`
	Uptime            float64 `json:"uptime_seconds"`
}
