// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package database

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/logging"
)

// ErrBatchNotFound is returned by GetBatch for an unknown id.
var ErrBatchNotFound = errors.New("batch not found")

// PersistenceError reports a failed batch write. The transaction was rolled
// back, so none of the batch is stored.
type PersistenceError struct {
	BatchID uuid.UUID
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist batch %s: %s: %v", e.BatchID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource in error paths where Close errors are not
// actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
