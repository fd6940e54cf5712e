// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/logging"
)

// Batches lists upload batches, newest first.
func (h *Handler) Batches(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	batches, err := h.store.ListBatches(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, batches, start)
}

// Batch returns one batch.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	batch, err := h.store.GetBatch(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, batch, start)
}

// DeleteBatch removes a batch with its records and their detection
// results. Deleting an unknown batch also returns 204.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := batchIDParam(w, r)
	if !ok {
		return
	}

	removed, err := h.store.DeleteBatch(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("batch_id", id.String()).
		Int64("records_removed", removed).
		Msg("Batch deleted")
	w.WriteHeader(http.StatusNoContent)
}

func batchIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "batch id must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
