// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/ipdrlens/internal/models"
)

const readinessTimeout = 2 * time.Second

// HealthLive answers liveness probes. It returns 200 while the process is
// serving, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, models.HealthStatus{
		Status:  "alive",
		Version: h.opts.Version,
		Uptime:  time.Since(h.startTime).Seconds(),
	}, start)
}

// HealthReady answers readiness probes. It returns 503 until the record
// store answers a ping and reports its schema version and record count.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondAPIError(w, http.StatusServiceUnavailable, &models.APIError{
			Code:    "NOT_READY",
			Message: "Database is not reachable",
		}, err)
		return
	}

	version, err := h.store.GetCurrentSchemaVersion(ctx)
	if err != nil {
		respondAPIError(w, http.StatusServiceUnavailable, &models.APIError{
			Code:    "NOT_READY",
			Message: "Database schema is not available",
		}, err)
		return
	}
	count, err := h.store.CountRecords(ctx)
	if err != nil {
		respondAPIError(w, http.StatusServiceUnavailable, &models.APIError{
			Code:    "NOT_READY",
			Message: "Record table is not available",
		}, err)
		return
	}

	respondSuccess(w, http.StatusOK, models.HealthStatus{
		Status:            "ready",
		Version:           h.opts.Version,
		DatabaseConnected: true,
		SchemaVersion:     version,
		RecordCount:       &count,
		Uptime:            time.Since(h.startTime).Seconds(),
	}, start)
}
