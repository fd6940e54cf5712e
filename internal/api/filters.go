// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/models"
)

const dateOnlyLayout = "2006-01-02"

// filterParams is the filter accepted as query parameters on the read
// endpoints and as the scope object of a detection request.
type filterParams struct {
	UserID            string `json:"user_id" validate:"max=256"`
	SourceIP          string `json:"source_ip" validate:"omitempty,ip"`
	DestinationIP     string `json:"destination_ip" validate:"omitempty,ip"`
	DestinationDomain string `json:"destination_domain" validate:"max=253"`
	BatchID           string `json:"batch_id" validate:"omitempty,uuid"`
	StartDate         string `json:"start_date" validate:"max=64"`
	EndDate           string `json:"end_date" validate:"max=64"`
	Limit             int    `json:"limit" validate:"gte=0"`
	Offset            int    `json:"offset" validate:"gte=0"`
}

func filterParamsFromQuery(r *http.Request) (filterParams, *models.APIError) {
	q := r.URL.Query()
	p := filterParams{
		UserID:            strings.TrimSpace(q.Get("user_id")),
		SourceIP:          strings.TrimSpace(q.Get("source_ip")),
		DestinationIP:     strings.TrimSpace(q.Get("destination_ip")),
		DestinationDomain: strings.TrimSpace(q.Get("destination_domain")),
		BatchID:           strings.TrimSpace(q.Get("batch_id")),
		StartDate:         strings.TrimSpace(q.Get("start_date")),
		EndDate:           strings.TrimSpace(q.Get("end_date")),
	}

	var ok bool
	if p.Limit, ok = getIntParam(r, "limit", 0); !ok {
		return p, &models.APIError{Code: codeValidation, Message: "limit must be an integer"}
	}
	if p.Offset, ok = getIntParam(r, "offset", 0); !ok {
		return p, &models.APIError{Code: codeValidation, Message: "offset must be an integer"}
	}
	return p, nil
}

// toFilter validates p and converts it. maxLimit caps Limit, and an unset
// limit means maxLimit. maxLimit 0 leaves the result unbounded.
func (p filterParams) toFilter(maxLimit int) (database.RecordFilter, *models.APIError) {
	if apiErr := validateRequest(&p); apiErr != nil {
		return database.RecordFilter{}, apiErr
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		return database.RecordFilter{}, &models.APIError{
			Code:    codeValidation,
			Message: fmt.Sprintf("limit must be less than or equal to %d", maxLimit),
		}
	}

	f := database.RecordFilter{
		UserID:            p.UserID,
		SourceIP:          p.SourceIP,
		DestinationIP:     p.DestinationIP,
		DestinationDomain: p.DestinationDomain,
		Limit:             p.Limit,
		Offset:            p.Offset,
	}
	if f.Limit == 0 {
		f.Limit = maxLimit
	}

	if p.BatchID != "" {
		id, err := uuid.Parse(p.BatchID)
		if err != nil {
			return f, &models.APIError{Code: codeValidation, Message: "batch_id must be a valid UUID"}
		}
		f.BatchID = &id
	}

	var err error
	if f.StartDate, err = parseDateParam(p.StartDate, false); err != nil {
		return f, &models.APIError{Code: codeValidation, Message: "start_date: " + err.Error()}
	}
	if f.EndDate, err = parseDateParam(p.EndDate, true); err != nil {
		return f, &models.APIError{Code: codeValidation, Message: "end_date: " + err.Error()}
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, &models.APIError{Code: codeValidation, Message: "end_date must not be before start_date"}
	}
	return f, nil
}

// parseDateParam accepts RFC 3339 or YYYY-MM-DD in UTC. A date-only end
// bound covers the whole day.
func parseDateParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.ParseInLocation(dateOnlyLayout, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("must be RFC 3339 or YYYY-MM-DD, got %q", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
