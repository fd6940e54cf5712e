// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

/*
Package supervisor runs the long-lived parts of the server under a
thejerf/suture/v4 supervision tree.

Services are restarted with exponential backoff when Serve returns an
error or panics. Supervisor events are logged through sutureslog, which
takes the *slog.Logger produced by logging.NewSlogLogger, so restarts show
up in the same zerolog stream as everything else.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddMaintenanceService(services.NewPeriodicService("duckdb-checkpoint", 5*time.Minute, db.Checkpoint))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = tree.Serve(ctx)

Shutdown: canceling the context stops every service. Services that do not
return within ShutdownTimeout are reported by UnstoppedServiceReport.
*/
package supervisor
