// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record store
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Ingestion
	IngestBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipdr_ingest_batches_total",
			Help: "Upload batches processed, by outcome",
		},
		[]string{"outcome"}, // "success", "mapping_error", "parse_error", "persistence_error"
	)

	IngestRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipdr_ingest_rows_total",
			Help: "Total IPDR rows persisted",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ipdr_ingest_duration_seconds",
			Help:    "End-to-end ingestion time per batch",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Enrichment
	EnrichmentLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_lookups_total",
			Help: "External enrichment lookups, by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: geo, rdns; outcome: success, failure, skipped
	)

	EnrichmentLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_lookup_duration_seconds",
			Help:    "Latency of external enrichment lookups",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Circuit breaker around geolocation providers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Anomaly engine
	DetectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomaly_detection_runs_total",
			Help: "Anomaly detection runs, by outcome",
		},
		[]string{"outcome"}, // success, insufficient_data, error
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anomaly_detection_duration_seconds",
			Help:    "Time spent fitting and scoring one detection run",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	AnomaliesFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomalies_flagged_total",
			Help: "Total records flagged as anomalous",
		},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordIngest records one ingestion call.
func RecordIngest(outcome string, rows int, duration time.Duration) {
	IngestBatches.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		IngestRows.Add(float64(rows))
	}
	IngestDuration.Observe(duration.Seconds())
}

// RecordLookup records an external enrichment lookup. duration is ignored
// for skipped and cached lookups, which never leave the process.
func RecordLookup(kind, outcome string, duration time.Duration) {
	EnrichmentLookups.WithLabelValues(kind, outcome).Inc()
	if outcome != "skipped" && outcome != "cached" {
		EnrichmentLookupDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// RecordDetection records one anomaly detection run.
func RecordDetection(outcome string, flagged int, duration time.Duration) {
	DetectionRuns.WithLabelValues(outcome).Inc()
	AnomaliesFlagged.Add(float64(flagged))
	DetectionDuration.Observe(duration.Seconds())
}
