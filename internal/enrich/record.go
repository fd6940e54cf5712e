// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/mapping"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// BuildRecord converts a canonical row into a record with typed fields and
// derived metrics. Geolocation and reverse DNS are left nil.
// rowNumber is 1-based.
func BuildRecord(row mapping.CanonicalRow, rowNumber int) models.EnrichedRecord {
	rec := models.EnrichedRecord{
		ID:        uuid.New(),
		RowNumber: rowNumber,

		UserID:          text(row, mapping.FieldUserID),
		Protocol:        text(row, mapping.FieldProtocol),
		MSISDN:          text(row, mapping.FieldMSISDN),
		IMEI:            text(row, mapping.FieldIMEI),
		IMSI:            text(row, mapping.FieldIMSI),
		CellID:          text(row, mapping.FieldCellID),
		SourcePort:      port(row, mapping.FieldSourcePort),
		DestinationPort: port(row, mapping.FieldDestinationPort),
	}

	if ip, ok := row.Value(mapping.FieldSourceIP); ok {
		ip = NormalizeIP(ip)
		rec.SourceIP = &ip
	}
	if ip, ok := row.Value(mapping.FieldDestinationIP); ok {
		ip = NormalizeIP(ip)
		rec.DestinationIP = &ip
	}

	if raw, ok := row.Value(mapping.FieldStartTime); ok {
		if ts, err := ParseTimestamp(raw); err == nil {
			rec.StartTime = &ts
		}
	}
	if raw, ok := row.Value(mapping.FieldEndTime); ok {
		if ts, err := ParseTimestamp(raw); err == nil {
			rec.EndTime = &ts
		}
	}
	if raw, ok := row.Value(mapping.FieldBytesSent); ok {
		if n, valid := ParseBytes(raw); valid {
			rec.BytesSent = &n
		}
	}
	if raw, ok := row.Value(mapping.FieldBytesReceived); ok {
		if n, valid := ParseBytes(raw); valid {
			rec.BytesReceived = &n
		}
	}

	m := ComputeDerivedMetrics(
		row[mapping.FieldStartTime],
		row[mapping.FieldEndTime],
		row[mapping.FieldBytesSent],
		row[mapping.FieldBytesReceived],
	)
	rec.SessionDurationSeconds = m.DurationSeconds
	rec.DataVolumeMB = m.VolumeMB
	return rec
}

func text(row mapping.CanonicalRow, f mapping.CanonicalField) *string {
	v, ok := row.Value(f)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func port(row mapping.CanonicalRow, f mapping.CanonicalField) *int {
	v, ok := row.Value(f)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 || n > 65535 {
		return nil
	}
	return &n
}
