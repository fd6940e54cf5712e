// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/ipdrlens/internal/models"
)

// Records returns enriched records matching the query filters, with KPIs
// computed over the returned page.
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	params, apiErr := filterParamsFromQuery(r)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}
	filter, apiErr := params.toFilter(h.opts.MaxPageSize)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}

	records, err := h.store.Query(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, models.RecordsResponse{
		Records: records,
		KPIs:    computeKPIs(records),
	}, start)
}

// Anomalies returns records that have a stored detection result. With
// flagged_only=true only records flagged as anomalous are returned.
func (h *Handler) Anomalies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	params, apiErr := filterParamsFromQuery(r)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}
	filter, apiErr := params.toFilter(h.opts.MaxPageSize)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}
	flaggedOnly, ok := getBoolParam(r, "flagged_only")
	if !ok {
		respondError(w, http.StatusBadRequest, codeValidation, "flagged_only must be a boolean", nil)
		return
	}
	filter.FlaggedOnly = flaggedOnly

	records, err := h.store.GetAnomalyResults(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, models.RecordsResponse{
		Records: records,
		KPIs:    computeKPIs(records),
	}, start)
}

// computeKPIs aggregates a result set. Absent durations and volumes add
// nothing; records without a user do not count as a user.
func computeKPIs(records []models.EnrichedRecord) models.RecordKPIs {
	kpis := models.RecordKPIs{TotalSessions: len(records)}
	users := make(map[string]struct{})
	var seconds float64

	for i := range records {
		rec := &records[i]
		if rec.UserID != nil {
			users[*rec.UserID] = struct{}{}
		}
		if rec.SessionDurationSeconds != nil {
			seconds += *rec.SessionDurationSeconds
		}
		if rec.DataVolumeMB != nil {
			kpis.TotalVolumeMB += *rec.DataVolumeMB
		}
		if rec.Anomaly != nil && rec.Anomaly.IsAnomaly {
			kpis.FlaggedAnomalies++
		}
	}

	kpis.UniqueUsers = len(users)
	kpis.TotalDurationHours = seconds / 3600
	return kpis
}
