// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ipdrlens/internal/ingest"
	"github.com/tomtom215/ipdrlens/internal/mapping"
	"github.com/tomtom215/ipdrlens/internal/models"
)

const (
	// multipartMemory is kept in memory before parts spill to disk.
	multipartMemory = 32 << 20
	// multipartOverhead allows for boundaries and the small form fields.
	multipartOverhead = 1 << 20
)

type uploadRequest struct {
	UploadedBy string `json:"uploaded_by" validate:"max=256"`
	FileName   string `json:"file" validate:"required,max=255"`
}

// Upload ingests one multipart file.
//
// Form fields: file (required), mapping (optional JSON object of canonical
// field to column name; omitted means auto-detect) and uploaded_by.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, "Upload exceeds the size limit", err)
			return
		}
		respondError(w, http.StatusBadRequest, codeValidation, "Request must be multipart/form-data with a file field", err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "file is required", err)
		return
	}
	defer func() { _ = file.Close() }()

	req := uploadRequest{
		UploadedBy: strings.TrimSpace(r.FormValue("uploaded_by")),
		FileName:   filepath.Base(header.Filename),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}

	var colMap map[string]string
	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &colMap); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "mapping must be a JSON object of field to column name", err)
			return
		}
	}

	summary, err := h.ingester.Ingest(r.Context(), ingest.Request{
		FileName:   req.FileName,
		UploadedBy: req.UploadedBy,
		Data:       file,
		Mapping:    colMap,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusCreated, uploadSummary(summary), start)
}

func uploadSummary(s *ingest.Summary) models.UploadSummary {
	out := models.UploadSummary{
		BatchID:            s.BatchID,
		FileName:           s.FileName,
		RowCount:           s.RowCount,
		EnrichmentFailures: s.EnrichmentFailures,
		GeoFailures:        s.Stats.GeoFailures,
		ReverseDNSFailures: s.Stats.ReverseDNSFailures,
		SkippedLookups:     s.Stats.Skipped,
		Mapping:            make(map[string]string, len(s.Mapping)),
		Unmapped:           fieldNames(s.Unmapped),
		Ambiguous:          fieldNames(s.Ambiguous),
		DerivedUserIDs:     s.DerivedUserIDs,
		DurationMS:         s.Duration.Milliseconds(),
	}
	for field, col := range s.Mapping {
		out.Mapping[string(field)] = col
	}
	return out
}

func fieldNames(fields []mapping.CanonicalField) []string {
	if len(fields) == 0 {
		return nil
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
