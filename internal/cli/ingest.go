// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ipdrlens/internal/ingest"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		uploadedBy string
		columns    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Upload a CSV or XLSX file of IP Data Records",
		Long: `Parse, map, enrich and store one file as a new batch.

Without --map the columns are detected from the header. Each --map names a
canonical field and the file column that holds it.

Examples:
  ipdrctl ingest sessions.csv
  ipdrctl ingest export.xlsx --map source_ip="Src Addr" --map user_id=Subscriber`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer closeLogged(path, f)

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			enricher, err := a.openEnricher()
			if err != nil {
				return err
			}
			defer closeLogged("enrichment", enricher)

			req := ingest.Request{
				FileName:   filepath.Base(path),
				UploadedBy: uploadedBy,
				Data:       f,
			}
			if len(columns) > 0 {
				req.Mapping = columns
			}

			summary, err := ingest.NewService(enricher, db, a.cfg.Ingest).Ingest(cmd.Context(), req)
			if err != nil {
				return err
			}

			p := a.printer()
			if p.jsonFmt {
				return p.json(summary)
			}
			p.printf("Batch %s: %d records from %s\n", summary.BatchID, summary.RowCount, summary.FileName)
			rows := make([][]string, 0, len(summary.Mapping))
			for field, column := range summary.Mapping {
				rows = append(rows, []string{string(field), column})
			}
			sortRows(rows)
			p.table([]string{"FIELD", "COLUMN"}, rows)
			if len(summary.Unmapped) > 0 {
				p.printf("Unmapped: %v\n", summary.Unmapped)
			}
			if len(summary.Ambiguous) > 0 {
				p.printf("Ambiguous (left unmapped): %v\n", summary.Ambiguous)
			}
			if summary.DerivedUserIDs {
				p.printf("User ids derived from source IP\n")
			}
			p.printf("Enrichment failures: %d\n", summary.EnrichmentFailures)
			return nil
		},
	}
	cmd.Flags().StringVar(&uploadedBy, "uploaded-by", os.Getenv("USER"), "uploader recorded on the batch")
	cmd.Flags().StringToStringVar(&columns, "map", nil, "canonical field=file column (repeatable)")
	return cmd
}
