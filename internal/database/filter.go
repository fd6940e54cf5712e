// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/ipdrlens/internal/database/query"
)

// RecordFilter selects records. All set fields combine with AND; the zero
// value selects everything.
//
//   - UserID, SourceIP, DestinationIP and BatchID match exactly.
//   - DestinationDomain is a case-insensitive substring match.
//   - StartDate and EndDate bound start_time inclusively. Records without a
//     start_time never match a date bound.
//   - FlaggedOnly keeps records flagged by the latest detection run.
type RecordFilter struct {
	UserID            string     `json:"user_id,omitempty"`
	SourceIP          string     `json:"source_ip,omitempty"`
	DestinationIP     string     `json:"destination_ip,omitempty"`
	DestinationDomain string     `json:"destination_domain,omitempty"`
	BatchID           *uuid.UUID `json:"batch_id,omitempty"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	FlaggedOnly       bool       `json:"flagged_only,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	withResults bool
}

// where builds the clause over ipdr_records aliased r and anomaly_results
// aliased a.
func (f *RecordFilter) where() (string, []interface{}) {
	wb := query.NewWhereBuilder().
		AddEquals("r.user_id", f.UserID).
		AddEquals("r.source_ip", f.SourceIP).
		AddEquals("r.destination_ip", f.DestinationIP).
		AddContainsFold("r.destination_domain", f.DestinationDomain).
		AddTimeRange("r.start_time", f.StartDate, f.EndDate)

	if f.BatchID != nil {
		wb.AddClause("r.batch_id = CAST(? AS UUID)", f.BatchID.String())
	}
	if f.FlaggedOnly {
		wb.AddClause("a.is_anomaly = true")
	} else if f.withResults {
		wb.AddClause("a.record_id IS NOT NULL")
	}
	return wb.BuildWithPrefix()
}
