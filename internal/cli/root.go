// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package cli implements ipdrctl, the operator command line for IPDRLens.
// It works directly on the DuckDB file, so uploads and detection runs can
// be scripted without the HTTP server.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/enrich"
	"github.com/tomtom215/ipdrlens/internal/logging"
)

type app struct {
	dbPath   string
	offline  bool
	output   string
	logLevel string

	cfg *config.Config

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the ipdrctl command tree bound to the process IO.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr)
}

// NewRootCommandWithIO is NewRootCommand with injected streams.
func NewRootCommandWithIO(in io.Reader, out, errOut io.Writer) *cobra.Command {
	return newRootCommand(in, out, errOut)
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{stdin: in, stdout: out, stderr: errOut}

	cmd := &cobra.Command{
		Use:   "ipdrctl",
		Short: "Ingest, query and score IP Data Records",
		Long: `ipdrctl runs the IPDRLens pipeline against a local DuckDB file.

Configuration comes from the same defaults, config.yaml and environment
variables as the server; flags override them.

Examples:
  ipdrctl ingest sessions.csv --uploaded-by analyst
  ipdrctl query --user user3 --start 2024-03-01 --end 2024-03-02
  ipdrctl detect --contamination 0.05
  ipdrctl batches delete 6f1c...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.dbPath, "db", "", "DuckDB file (overrides DUCKDB_PATH)")
	flags.BoolVar(&a.offline, "offline", false, "skip geolocation and reverse DNS lookups")
	flags.StringVarP(&a.output, "output", "o", "table", "output format: table or json")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")

	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newQueryCmd(a))
	cmd.AddCommand(newDetectCmd(a))
	cmd.AddCommand(newBatchesCmd(a))
	return cmd
}

func (a *app) init() error {
	if a.output != "table" && a.output != "json" {
		return fmt.Errorf("unknown output format %q (want table or json)", a.output)
	}

	logging.Init(logging.Config{Level: a.logLevel, Format: "console", Output: a.stderr})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	a.cfg = cfg
	return nil
}

func (a *app) printer() *printer {
	return newPrinter(a.stdout, a.output == "json")
}

// openStore opens the record store. Callers close it.
func (a *app) openStore() (*database.DB, error) {
	db, err := database.New(&a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.cfg.Database.Path, err)
	}
	return db, nil
}

// openEnricher builds the enrichment service. Offline mode only derives
// metrics. Callers close it.
func (a *app) openEnricher() (*enrich.Service, error) {
	if a.offline {
		return enrich.NewService(enrich.Options{}), nil
	}
	return enrich.NewServiceFromConfig(&a.cfg.Enrichment)
}

func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Warn().Err(err).Str("resource", name).Msg("Close failed")
	}
}
