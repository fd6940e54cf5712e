// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/detection"
	"github.com/tomtom215/ipdrlens/internal/ingest"
	"github.com/tomtom215/ipdrlens/internal/mapping"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// Error codes returned in APIError.Code.
const (
	codeValidation       = "VALIDATION_ERROR"
	codeMapping          = "MAPPING_ERROR"
	codeParse            = "PARSE_ERROR"
	codeFileTooLarge     = "FILE_TOO_LARGE"
	codePersistence      = "PERSISTENCE_ERROR"
	codeInsufficientData = "INSUFFICIENT_DATA"
	codeNotFound         = "NOT_FOUND"
	codeTimeout          = "TIMEOUT"
	codeInternal         = "INTERNAL_ERROR"
)

// respondServiceError maps pipeline errors to status codes and API codes.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		merr *mapping.MappingError
		perr *database.PersistenceError
	)

	switch {
	case errors.As(err, &merr):
		respondAPIError(w, http.StatusUnprocessableEntity, &models.APIError{
			Code:    codeMapping,
			Message: merr.Error(),
			Details: mappingDetails(merr),
		}, err)

	case errors.Is(err, ingest.ErrFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, codeFileTooLarge, err.Error(), err)

	case ingest.IsFileError(err):
		respondError(w, http.StatusBadRequest, codeParse, err.Error(), err)

	case errors.Is(err, detection.ErrInsufficientData):
		respondError(w, http.StatusUnprocessableEntity, codeInsufficientData,
			"Not enough records with complete features to run detection", err)

	case errors.Is(err, detection.ErrInvalidConfig):
		respondError(w, http.StatusBadRequest, codeValidation, err.Error(), err)

	case errors.As(err, &perr):
		respondError(w, http.StatusInternalServerError, codePersistence,
			"Batch could not be stored; nothing was ingested", err)

	case errors.Is(err, database.ErrBatchNotFound):
		respondError(w, http.StatusNotFound, codeNotFound, "Batch not found", err)

	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, codeTimeout, "Request timed out", err)

	default:
		respondError(w, http.StatusInternalServerError, codeInternal, "Internal server error", err)
	}
}

func mappingDetails(merr *mapping.MappingError) map[string]interface{} {
	details := make(map[string]interface{}, 2)
	if len(merr.MissingColumns) > 0 {
		missing := make(map[string]string, len(merr.MissingColumns))
		for field, col := range merr.MissingColumns {
			missing[string(field)] = col
		}
		details["missing_columns"] = missing
	}
	if len(merr.UnknownFields) > 0 {
		details["unknown_fields"] = merr.UnknownFields
	}
	return details
}
