// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ipdrlens/internal/models"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		scope       scopeFlags
		limit       int
		offset      int
		flaggedOnly bool
	)
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"records"},
		Short:   "List stored records",
		Long: `List enriched records ordered by start time. All filters combine.

Examples:
  ipdrctl query --user user3
  ipdrctl query --domain example --start 2024-03-01 --end 2024-03-01
  ipdrctl query --flagged-only -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 || offset < 0 {
				return fmt.Errorf("--limit and --offset must be >= 0")
			}
			filter, err := scope.filter()
			if err != nil {
				return err
			}
			filter.Limit = limit
			filter.Offset = offset

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			var records []models.EnrichedRecord
			if flaggedOnly {
				filter.FlaggedOnly = true
				records, err = db.GetAnomalyResults(cmd.Context(), filter)
			} else {
				records, err = db.Query(cmd.Context(), filter)
			}
			if err != nil {
				return err
			}

			p := a.printer()
			if p.jsonFmt {
				return p.json(records)
			}
			rows := make([][]string, 0, len(records))
			for i := range records {
				rows = append(rows, recordRow(&records[i]))
			}
			p.table([]string{"ID", "USER", "SOURCE", "DESTINATION", "DOMAIN", "COUNTRY", "START", "DURATION_S", "VOLUME_MB", "SCORE"}, rows)
			p.printf("%d records\n", len(records))
			return nil
		},
	}
	scope.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum records (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().BoolVar(&flaggedOnly, "flagged-only", false, "only records flagged by the latest detection run")
	return cmd
}

func recordRow(r *models.EnrichedRecord) []string {
	score := "-"
	if r.Anomaly != nil && r.Anomaly.Score != nil {
		score = floatOrDash(r.Anomaly.Score, 4)
		if r.Anomaly.IsAnomaly {
			score += " *"
		}
	}
	return []string{
		r.ID.String()[:8],
		strOrDash(r.UserID),
		strOrDash(r.SourceIP),
		strOrDash(r.DestinationIP),
		strOrDash(r.DestinationDomain),
		strOrDash(r.Country),
		timeOrDash(r.StartTime),
		floatOrDash(r.SessionDurationSeconds, 0),
		floatOrDash(r.DataVolumeMB, 2),
		score,
	}
}
