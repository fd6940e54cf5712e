// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package mapping

import (
	"strings"
)

// CanonicalRow has one key for every canonical field. A nil value means the
// field is unmapped, ambiguous, or blank in this row.
type CanonicalRow map[CanonicalField]*string

// Value returns the trimmed value of f, or "" and false when it is null.
func (r CanonicalRow) Value(f CanonicalField) (string, bool) {
	v := r[f]
	if v == nil {
		return "", false
	}
	return *v, true
}

// Mapper projects raw rows onto canonical rows for one header.
type Mapper struct {
	index     map[CanonicalField]int
	ambiguous []CanonicalField
}

// NewMapper validates m against header and resolves column positions.
// A mapped column that appears more than once in the header cannot resolve
// to exactly one position; that field is treated as unmapped and reported
// by Ambiguous.
func NewMapper(header []string, m ColumnMapping) (*Mapper, error) {
	if err := Validate(header, m); err != nil {
		return nil, err
	}

	positions := make(map[string][]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		positions[name] = append(positions[name], i)
	}

	mp := &Mapper{index: make(map[CanonicalField]int, len(m))}
	for _, f := range Fields {
		raw := strings.TrimSpace(m[f])
		if raw == "" {
			continue
		}
		idx := positions[raw]
		if len(idx) != 1 {
			mp.ambiguous = append(mp.ambiguous, f)
			continue
		}
		mp.index[f] = idx[0]
	}
	return mp, nil
}

// Mapped reports whether f resolves to a column.
func (m *Mapper) Mapped(f CanonicalField) bool {
	_, ok := m.index[f]
	return ok
}

// Unmapped lists the enrichment inputs that will be null in every row.
func (m *Mapper) Unmapped() []CanonicalField {
	var out []CanonicalField
	for _, f := range EnrichmentFields {
		if !m.Mapped(f) {
			out = append(out, f)
		}
	}
	return out
}

// Ambiguous lists fields whose raw column appears more than once.
func (m *Mapper) Ambiguous() []CanonicalField {
	return m.ambiguous
}

// Map builds the canonical row for one raw row. Short rows and blank cells
// produce nil values.
func (m *Mapper) Map(row []string) CanonicalRow {
	out := make(CanonicalRow, len(Fields))
	for _, f := range Fields {
		out[f] = nil
		idx, ok := m.index[f]
		if !ok || idx >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[idx])
		if v == "" {
			continue
		}
		out[f] = &v
	}
	return out
}

// MapAll maps every row, preserving order.
func (m *Mapper) MapAll(rows [][]string) []CanonicalRow {
	out := make([]CanonicalRow, len(rows))
	for i, r := range rows {
		out[i] = m.Map(r)
	}
	return out
}
