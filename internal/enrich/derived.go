// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// BytesPerMB converts byte counts to data_volume_mb.
const BytesPerMB = 1024 * 1024

// timeLayouts are tried in order. Values without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"02-01-2006 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

var errBadTimestamp = errors.New("unrecognized timestamp format")

// ParseTimestamp parses the timestamp formats seen in IPDR exports,
// including Unix epoch seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errBadTimestamp
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, errBadTimestamp
}

// ParseBytes parses a non-negative byte counter. Integral floats such as
// "1024.0" (common in spreadsheet exports) are accepted.
func ParseBytes(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// DerivedMetrics holds the values computed from a row's own fields.
type DerivedMetrics struct {
	DurationSeconds *float64
	VolumeMB        *float64
}

// ComputeDerivedMetrics computes session duration and data volume.
//
// Duration is nil when either timestamp is missing or unparseable, or when
// end precedes start. Volume is nil when both byte counters are missing or
// any present counter is not a non-negative number; a single missing side
// counts as zero.
func ComputeDerivedMetrics(start, end, bytesSent, bytesReceived *string) DerivedMetrics {
	var m DerivedMetrics

	if start != nil && end != nil {
		s, errStart := ParseTimestamp(*start)
		e, errEnd := ParseTimestamp(*end)
		if errStart == nil && errEnd == nil && !e.Before(s) {
			d := e.Sub(s).Seconds()
			m.DurationSeconds = &d
		}
	}

	if bytesSent == nil && bytesReceived == nil {
		return m
	}
	// Summed as float64: two counters near MaxInt64 would overflow int64.
	var total float64
	for _, raw := range []*string{bytesSent, bytesReceived} {
		if raw == nil {
			continue
		}
		n, ok := ParseBytes(*raw)
		if !ok {
			return m
		}
		total += float64(n)
	}
	mb := total / BytesPerMB
	m.VolumeMB = &mb
	return m
}
