// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ipdrlens/internal/detection"
	"github.com/tomtom215/ipdrlens/internal/models"
)

func newDetectCmd(a *app) *cobra.Command {
	var (
		scope         scopeFlags
		contamination float64
		auto          bool
		seed          int64
		features      []string
		trees         int
		sample        int
		top           int
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Score stored records with an isolation forest",
		Long: `Fit an isolation forest over the selected records, flag outliers and
store the scores. Each run replaces earlier results for the records it
scores.

With --contamination the highest-scoring share of records is flagged. With
--auto every record scoring above 0.5 is flagged.

Examples:
  ipdrctl detect
  ipdrctl detect --user user3 --contamination 0.02
  ipdrctl detect --auto --features session_duration_seconds,data_volume_mb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := scope.filter()
			if err != nil {
				return err
			}

			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeLogged("database", db)

			svc := detection.NewService(db, detection.ConfigFromSettings(a.cfg.Detection))
			cfg := svc.Defaults()

			flags := cmd.Flags()
			if auto && flags.Changed("contamination") {
				return fmt.Errorf("--auto and --contamination are mutually exclusive")
			}
			if flags.Changed("contamination") {
				c := contamination
				cfg.Contamination = &c
			}
			if auto {
				cfg.Contamination = nil
			}
			if flags.Changed("seed") {
				cfg.RandomSeed = seed
			}
			if flags.Changed("features") {
				cfg.FeatureSet = features
			}
			if flags.Changed("trees") {
				cfg.NumTrees = trees
			}
			if flags.Changed("sample-size") {
				cfg.SampleSize = sample
			}

			summary, err := svc.Run(cmd.Context(), filter, cfg)
			if err != nil {
				return err
			}

			p := a.printer()
			if p.jsonFmt {
				return p.json(summary)
			}
			mode := "auto"
			if summary.Contamination != nil {
				mode = fmt.Sprintf("contamination %.3f", *summary.Contamination)
			}
			p.printf("Run %s (%s, %d ms)\n", summary.RunID, mode, summary.DurationMs)
			p.printf("Records: %d  Scored: %d  Flagged: %d  Threshold: %.4f\n",
				summary.Records, summary.Scored, summary.Flagged, summary.Threshold)

			flagged := topFlagged(summary.Results, top)
			if len(flagged) > 0 {
				rows := make([][]string, 0, len(flagged))
				for _, r := range flagged {
					rows = append(rows, []string{r.RecordID.String(), floatOrDash(r.Score, 4)})
				}
				p.table([]string{"RECORD", "SCORE"}, rows)
			}
			return nil
		},
	}
	scope.register(cmd)
	f := cmd.Flags()
	f.Float64Var(&contamination, "contamination", 0, "expected anomaly share in (0, 0.5]")
	f.BoolVar(&auto, "auto", false, "flag scores above 0.5 instead of a fixed share")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.StringSliceVar(&features, "features", nil, "feature subset (comma separated)")
	f.IntVar(&trees, "trees", 0, "number of trees")
	f.IntVar(&sample, "sample-size", 0, "rows sampled per tree")
	f.IntVar(&top, "top", 10, "flagged records to list")
	return cmd
}

// topFlagged returns up to n flagged results, highest score first.
func topFlagged(results map[string]models.AnomalyResult, n int) []models.AnomalyResult {
	out := make([]models.AnomalyResult, 0)
	for _, r := range results {
		if r.IsAnomaly && r.Score != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if *out[i].Score != *out[j].Score {
			return *out[i].Score > *out[j].Score
		}
		return out[i].RecordID.String() < out[j].RecordID.String()
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
