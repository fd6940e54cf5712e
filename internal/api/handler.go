// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/detection"
	"github.com/tomtom215/ipdrlens/internal/ingest"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// RecordStore is the read and delete side of the record store.
type RecordStore interface {
	Ping(ctx context.Context) error
	GetCurrentSchemaVersion(ctx context.Context) (int, error)
	CountRecords(ctx context.Context) (int64, error)
	Query(ctx context.Context, f database.RecordFilter) ([]models.EnrichedRecord, error)
	GetAnomalyResults(ctx context.Context, f database.RecordFilter) ([]models.EnrichedRecord, error)
	ListBatches(ctx context.Context) ([]models.UploadBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*models.UploadBatch, error)
	DeleteBatch(ctx context.Context, id uuid.UUID) (int64, error)
}

// Ingester runs the upload pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Summary, error)
}

// Detector runs anomaly detection over stored records.
type Detector interface {
	Run(ctx context.Context, scope database.RecordFilter, cfg detection.Config) (*detection.RunSummary, error)
	Defaults() detection.Config
}

// Options tunes request handling.
type Options struct {
	// MaxUploadBytes caps multipart request bodies; 0 means no cap.
	MaxUploadBytes int64
	// MaxPageSize caps the limit query parameter.
	MaxPageSize int
	Version     string
}

// Handler serves the HTTP API.
type Handler struct {
	store     RecordStore
	ingester  Ingester
	detector  Detector
	opts      Options
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(store RecordStore, ingester Ingester, detector Detector, opts Options) *Handler {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100000
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{
		store:     store,
		ingester:  ingester,
		detector:  detector,
		opts:      opts,
		startTime: time.Now(),
	}
}
