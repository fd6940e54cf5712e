// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package cli

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/ipdrlens/internal/database"
)

// scopeFlags are the record filters shared by query and detect.
type scopeFlags struct {
	user, source, destination, domain, batch string
	start, end                               string
}

func (s *scopeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.user, "user", "", "user id")
	f.StringVar(&s.source, "source-ip", "", "source IP")
	f.StringVar(&s.destination, "destination-ip", "", "destination IP")
	f.StringVar(&s.domain, "domain", "", "destination domain substring (case-insensitive)")
	f.StringVar(&s.batch, "batch", "", "upload batch id")
	f.StringVar(&s.start, "start", "", "earliest start time, RFC 3339 or YYYY-MM-DD")
	f.StringVar(&s.end, "end", "", "latest start time, RFC 3339 or YYYY-MM-DD (whole day)")
}

func (s *scopeFlags) filter() (database.RecordFilter, error) {
	f := database.RecordFilter{
		UserID:            s.user,
		SourceIP:          s.source,
		DestinationIP:     s.destination,
		DestinationDomain: s.domain,
	}
	for name, ip := range map[string]string{"source-ip": s.source, "destination-ip": s.destination} {
		if ip != "" && net.ParseIP(ip) == nil {
			return f, fmt.Errorf("--%s: %q is not an IP address", name, ip)
		}
	}
	if s.batch != "" {
		id, err := uuid.Parse(s.batch)
		if err != nil {
			return f, fmt.Errorf("--batch: %w", err)
		}
		f.BatchID = &id
	}

	var err error
	if f.StartDate, err = parseDate(s.start, false); err != nil {
		return f, fmt.Errorf("--start: %w", err)
	}
	if f.EndDate, err = parseDate(s.end, true); err != nil {
		return f, fmt.Errorf("--end: %w", err)
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, fmt.Errorf("--end is before --start")
	}
	return f, nil
}

// parseDate accepts RFC 3339 or a bare UTC date. A bare end date covers
// the whole day.
func parseDate(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
