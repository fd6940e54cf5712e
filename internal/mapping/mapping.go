// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package mapping translates the column names of an uploaded IPDR file into
// the canonical field set used by the rest of the pipeline.
//
// A mapping is checked against the file header once, before any row is
// touched. A mapping that names a column the header does not have is a
// *MappingError and nothing is processed. A canonical field left out of the
// mapping is not an error: every mapped row carries it as a nil value.
package mapping

import (
	"fmt"
	"sort"
	"strings"
)

// CanonicalField names a column of the canonical row.
type CanonicalField string

const (
	FieldSourceIP        CanonicalField = "source_ip"
	FieldDestinationIP   CanonicalField = "destination_ip"
	FieldStartTime       CanonicalField = "start_time"
	FieldEndTime         CanonicalField = "end_time"
	FieldBytesSent       CanonicalField = "bytes_sent"
	FieldBytesReceived   CanonicalField = "bytes_received"
	FieldUserID          CanonicalField = "user_id"
	FieldSourcePort      CanonicalField = "source_port"
	FieldDestinationPort CanonicalField = "destination_port"
	FieldProtocol        CanonicalField = "protocol"
	FieldMSISDN          CanonicalField = "msisdn"
	FieldIMEI            CanonicalField = "imei"
	FieldIMSI            CanonicalField = "imsi"
	FieldCellID          CanonicalField = "cell_id"
)

// Fields lists every canonical field in output order.
var Fields = []CanonicalField{
	FieldSourceIP,
	FieldDestinationIP,
	FieldStartTime,
	FieldEndTime,
	FieldBytesSent,
	FieldBytesReceived,
	FieldUserID,
	FieldSourcePort,
	FieldDestinationPort,
	FieldProtocol,
	FieldMSISDN,
	FieldIMEI,
	FieldIMSI,
	FieldCellID,
}

// EnrichmentFields are read by enrichment and derived metrics. Leaving one
// unmapped disables the matching enrichment step only.
var EnrichmentFields = []CanonicalField{
	FieldSourceIP,
	FieldDestinationIP,
	FieldStartTime,
	FieldEndTime,
	FieldBytesSent,
	FieldBytesReceived,
}

// fieldAliases lets callers use legacy canonical names as mapping keys.
// Single-counter files only have a bytes_transferred column.
var fieldAliases = map[string]CanonicalField{
	"bytes_transferred":  FieldBytesSent,
	"session_start_time": FieldStartTime,
	"session_end_time":   FieldEndTime,
	"user_number":        FieldUserID,
}

func knownField(name string) (CanonicalField, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	f, ok := fieldAliases[name]
	return f, ok
}

// ColumnMapping maps a canonical field to the raw header it is read from.
// An empty raw name means unmapped.
type ColumnMapping map[CanonicalField]string

// MappingError reports every problem with a mapping at once.
type MappingError struct {
	// MissingColumns maps canonical field to the raw column absent from the header.
	MissingColumns map[CanonicalField]string
	// UnknownFields are mapping keys that are not canonical fields.
	UnknownFields []string
}

func (e *MappingError) Error() string {
	var parts []string
	if len(e.MissingColumns) > 0 {
		cols := make([]string, 0, len(e.MissingColumns))
		for f, raw := range e.MissingColumns {
			cols = append(cols, fmt.Sprintf("%s->%q", f, raw))
		}
		sort.Strings(cols)
		parts = append(parts, "columns not in file header: "+strings.Join(cols, ", "))
	}
	if len(e.UnknownFields) > 0 {
		parts = append(parts, "unknown canonical fields: "+strings.Join(e.UnknownFields, ", "))
	}
	if len(parts) == 0 {
		return "invalid column mapping"
	}
	return "invalid column mapping: " + strings.Join(parts, "; ")
}

// Normalize resolves alias keys and drops empty entries. Unknown keys are
// returned separately. When an alias and its canonical name are both
// present the canonical entry wins.
func Normalize(raw map[string]string) (ColumnMapping, []string) {
	out := make(ColumnMapping, len(raw))
	var unknown []string
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		col := strings.TrimSpace(raw[k])
		if col == "" {
			continue
		}
		f, ok := knownField(k)
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		isCanonical := string(f) == strings.ToLower(strings.TrimSpace(k))
		if _, exists := out[f]; exists && !isCanonical {
			continue
		}
		out[f] = col
	}
	return out, unknown
}

// Validate checks m against header. It returns *MappingError when a mapped
// column is missing from the header.
func Validate(header []string, m ColumnMapping) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}

	missing := make(map[CanonicalField]string)
	var unknown []string
	for f, raw := range m {
		if _, ok := knownField(string(f)); !ok {
			unknown = append(unknown, string(f))
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !present[raw] {
			missing[f] = raw
		}
	}
	sort.Strings(unknown)

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	return &MappingError{MissingColumns: missing, UnknownFields: unknown}
}
