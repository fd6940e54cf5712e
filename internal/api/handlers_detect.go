// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ipdrlens/internal/detection"
	"github.com/tomtom215/ipdrlens/internal/models"
)

const maxDetectBodyBytes = 64 << 10

type detectRequest struct {
	Scope  *filterParams  `json:"scope"`
	Config *detectOptions `json:"config"`
}

// detectOptions overrides the server defaults. Auto selects the automatic
// threshold and cannot be combined with Contamination.
type detectOptions struct {
	Contamination *float64 `json:"contamination" validate:"omitempty,gt=0,lte=0.5"`
	Auto          bool     `json:"auto"`
	RandomSeed    *int64   `json:"random_seed"`
	FeatureSet    []string `json:"feature_set" validate:"omitempty,max=16,dive,required"`
	NumTrees      *int     `json:"num_trees" validate:"omitempty,gte=1,lte=1000"`
	SampleSize    *int     `json:"sample_size" validate:"omitempty,gte=2,lte=65536"`
}

// Detect runs anomaly detection over the records selected by scope and
// stores one result per record. An empty body uses the server defaults over
// all records.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDetectBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, codeValidation, "Request body too large", err)
		return
	}

	var req detectRequest
	if len(bytes.TrimSpace(body)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "Invalid request body: "+err.Error(), err)
			return
		}
	}

	var scope filterParams
	if req.Scope != nil {
		scope = *req.Scope
	}
	filter, apiErr := scope.toFilter(0)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}

	cfg, apiErr := h.detectionConfig(req.Config)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr, nil)
		return
	}

	summary, err := h.detector.Run(r.Context(), filter, cfg)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, detectionResponse(summary), start)
}

func (h *Handler) detectionConfig(opts *detectOptions) (detection.Config, *models.APIError) {
	cfg := h.detector.Defaults()
	if opts == nil {
		return cfg, nil
	}
	if apiErr := validateRequest(opts); apiErr != nil {
		return cfg, apiErr
	}
	if opts.Auto && opts.Contamination != nil {
		return cfg, &models.APIError{Code: codeValidation, Message: "contamination and auto are mutually exclusive"}
	}

	switch {
	case opts.Auto:
		cfg.Contamination = nil
	case opts.Contamination != nil:
		c := *opts.Contamination
		cfg.Contamination = &c
	}
	if opts.RandomSeed != nil {
		cfg.RandomSeed = *opts.RandomSeed
	}
	if len(opts.FeatureSet) > 0 {
		cfg.FeatureSet = append([]string(nil), opts.FeatureSet...)
	}
	if opts.NumTrees != nil {
		cfg.NumTrees = *opts.NumTrees
	}
	if opts.SampleSize != nil {
		cfg.SampleSize = *opts.SampleSize
	}
	return cfg, nil
}

func detectionResponse(s *detection.RunSummary) models.DetectionResponse {
	features := make([]string, len(s.Features))
	for i, f := range s.Features {
		features[i] = string(f)
	}
	return models.DetectionResponse{
		RunID:         s.RunID,
		Records:       s.Records,
		Scored:        s.Scored,
		NotScored:     s.Records - s.Scored,
		Flagged:       s.Flagged,
		Threshold:     s.Threshold,
		Contamination: s.Contamination,
		Features:      features,
		DurationMS:    s.DurationMs,
		Results:       s.Results,
	}
}
