// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package cli

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/ipdrlens/internal/models"
)

func newBatchesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List, inspect and delete upload batches",
		Long: `Without a subcommand, list all batches newest first.

Examples:
  ipdrctl batches
  ipdrctl batches show 6f1c0d1e-...
  ipdrctl batches delete 6f1c0d1e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			batches, err := db.ListBatches(cmd.Context())
			if err != nil {
				return err
			}
			return a.printBatches(batches)
		},
	}
	cmd.AddCommand(newBatchShowCmd(a))
	cmd.AddCommand(newBatchDeleteCmd(a))
	return cmd
}

func newBatchShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			batch, err := db.GetBatch(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printBatches([]models.UploadBatch{*batch})
		},
	}
}

func newBatchDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a batch with its records and anomaly results (unknown ids remove nothing)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			removed, err := db.DeleteBatch(cmd.Context(), id)
			if err != nil {
				return err
			}

			p := a.printer()
			if p.jsonFmt {
				return p.json(map[string]interface{}{"batch_id": id, "records_removed": removed})
			}
			p.printf("Deleted batch %s (%d records)\n", id, removed)
			return nil
		},
	}
}

func (a *app) printBatches(batches []models.UploadBatch) error {
	p := a.printer()
	if p.jsonFmt {
		return p.json(batches)
	}
	rows := make([][]string, 0, len(batches))
	for _, b := range batches {
		rows = append(rows, []string{
			b.ID.String(),
			b.FileName,
			b.UploadedBy,
			b.UploadedAt.UTC().Format("2006-01-02 15:04:05"),
			strconv.Itoa(b.RowCount),
			strconv.Itoa(b.EnrichmentFailures),
		})
	}
	p.table([]string{"ID", "FILE", "UPLOADED_BY", "UPLOADED_AT", "ROWS", "ENRICHMENT_FAILURES"}, rows)
	return nil
}
