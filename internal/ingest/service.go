// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package ingest turns an uploaded IPDR file into a persisted batch of
// enriched records.
//
//	file -> ParseFile -> column mapping -> user ids -> enrich.EnrichBatch -> database.Persist
//
// A bad mapping is rejected before any row is processed. Lookup failures
// degrade single fields and are counted; they never fail the upload.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/enrich"
	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/mapping"
	"github.com/tomtom215/ipdrlens/internal/metrics"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// Enricher fills lookup and derived fields for mapped rows.
type Enricher interface {
	EnrichBatch(ctx context.Context, rows []mapping.CanonicalRow) ([]models.EnrichedRecord, enrich.EnrichmentStats)
}

// BatchWriter persists one batch atomically.
type BatchWriter interface {
	Persist(ctx context.Context, batch *models.UploadBatch, records []models.EnrichedRecord) error
}

// Request is one upload.
type Request struct {
	FileName   string
	UploadedBy string
	Data       io.Reader
	// Mapping maps canonical field names (or aliases) to raw headers. Nil
	// selects header auto-detection.
	Mapping map[string]string
}

// Summary reports a completed upload.
type Summary struct {
	BatchID            uuid.UUID                `json:"batch_id"`
	FileName           string                   `json:"file_name"`
	RowCount           int                      `json:"row_count"`
	EnrichmentFailures int                      `json:"enrichment_failures"`
	Stats              enrich.EnrichmentStats   `json:"stats"`
	Mapping            mapping.ColumnMapping    `json:"mapping"`
	Unmapped           []mapping.CanonicalField `json:"unmapped,omitempty"`
	Ambiguous          []mapping.CanonicalField `json:"ambiguous,omitempty"`
	DerivedUserIDs     bool                     `json:"derived_user_ids"`
	Duration           time.Duration            `json:"-"`
}

// Service runs the ingestion pipeline.
type Service struct {
	enricher       Enricher
	store          BatchWriter
	maxUploadBytes int64
	deriveUserIDs  bool
}

// NewService creates an ingestion service.
func NewService(enricher Enricher, store BatchWriter, cfg config.IngestConfig) *Service {
	return &Service{
		enricher:       enricher,
		store:          store,
		maxUploadBytes: cfg.MaxUploadBytes,
		deriveUserIDs:  cfg.DeriveUserIDs,
	}
}

// Ingest parses, maps, enriches and persists one upload.
//
// Errors: *mapping.MappingError for a mapping that does not fit the header,
// ErrUnsupportedFormat, ErrEmptyFile, ErrParse or ErrFileTooLarge for bad
// files, and *database.PersistenceError when the batch could not be stored.
func (s *Service) Ingest(ctx context.Context, req Request) (*Summary, error) {
	start := time.Now()
	batchID := uuid.New()
	ctx = logging.ContextWithBatchID(ctx, batchID.String())

	summary, err := s.ingest(ctx, batchID, req)
	duration := time.Since(start)

	if err != nil {
		metrics.RecordIngest(ingestOutcome(err), 0, duration)
		logging.Ctx(ctx).Warn().Err(err).Str("file", req.FileName).Msg("Upload rejected")
		return nil, err
	}

	summary.Duration = duration
	metrics.RecordIngest("success", summary.RowCount, duration)
	logging.Ctx(ctx).Info().
		Str("file", req.FileName).
		Int("rows", summary.RowCount).
		Int("enrichment_failures", summary.EnrichmentFailures).
		Int("skipped_lookups", summary.Stats.Skipped).
		Dur("duration", duration).
		Msg("Upload ingested")
	return summary, nil
}

func (s *Service) ingest(ctx context.Context, batchID uuid.UUID, req Request) (*Summary, error) {
	data, err := s.readLimited(req.Data)
	if err != nil {
		return nil, err
	}

	table, err := ParseFile(req.FileName, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	colMap, err := resolveMapping(table.Header, req.Mapping)
	if err != nil {
		return nil, err
	}
	mapper, err := mapping.NewMapper(table.Header, colMap)
	if err != nil {
		return nil, err
	}
	for _, f := range mapper.Ambiguous() {
		logging.Ctx(ctx).Warn().Str("field", string(f)).Str("column", colMap[f]).Msg("Mapped column appears more than once; field left unmapped")
	}

	rows := mapper.MapAll(table.Rows)
	derived := false
	if s.deriveUserIDs && !mapper.Mapped(mapping.FieldUserID) {
		derived = DeriveUserIDs(rows)
	}

	records, stats := s.enricher.EnrichBatch(ctx, rows)

	batch := &models.UploadBatch{
		ID:                 batchID,
		FileName:           req.FileName,
		UploadedBy:         req.UploadedBy,
		UploadedAt:         time.Now().UTC(),
		EnrichmentFailures: stats.Failures(),
	}
	if err := s.store.Persist(ctx, batch, records); err != nil {
		return nil, err
	}

	return &Summary{
		BatchID:            batch.ID,
		FileName:           req.FileName,
		RowCount:           batch.RowCount,
		EnrichmentFailures: batch.EnrichmentFailures,
		Stats:              stats,
		Mapping:            colMap,
		Unmapped:           mapper.Unmapped(),
		Ambiguous:          mapper.Ambiguous(),
		DerivedUserIDs:     derived,
	}, nil
}

func (s *Service) readLimited(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, ErrEmptyFile
	}
	if s.maxUploadBytes > 0 {
		r = io.LimitReader(r, s.maxUploadBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if s.maxUploadBytes > 0 && int64(len(data)) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// resolveMapping normalizes a caller mapping or auto-detects one. Unknown
// canonical keys are reported together with any missing columns.
func resolveMapping(header []string, raw map[string]string) (mapping.ColumnMapping, error) {
	if raw == nil {
		return mapping.AutoDetect(header), nil
	}
	m, unknown := mapping.Normalize(raw)
	if len(unknown) == 0 {
		return m, nil
	}
	merr := &mapping.MappingError{UnknownFields: unknown}
	var verr *mapping.MappingError
	if errors.As(mapping.Validate(header, m), &verr) {
		merr.MissingColumns = verr.MissingColumns
	}
	return nil, merr
}

// DeriveUserIDs assigns user1, user2... to rows by source IP in order of
// first appearance. Rows without a source IP keep a null user. It reports
// whether any id was assigned.
func DeriveUserIDs(rows []mapping.CanonicalRow) bool {
	ids := make(map[string]string)
	assigned := false
	for _, row := range rows {
		ip, ok := row.Value(mapping.FieldSourceIP)
		if !ok {
			continue
		}
		id, seen := ids[ip]
		if !seen {
			id = "user" + strconv.Itoa(len(ids)+1)
			ids[ip] = id
		}
		v := id
		row[mapping.FieldUserID] = &v
		assigned = true
	}
	return assigned
}

func ingestOutcome(err error) string {
	var merr *mapping.MappingError
	switch {
	case errors.As(err, &merr):
		return "mapping_error"
	case IsFileError(err):
		return "parse_error"
	default:
		return "persist_error"
	}
}

// IsFileError reports whether err describes an unreadable or rejected file
// rather than a server fault.
func IsFileError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrParse)
}
