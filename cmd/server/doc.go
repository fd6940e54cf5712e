// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

/*
Package main is the entry point for the IPDRLens server.

IPDRLens ingests IP Data Record uploads (CSV or XLSX), maps their columns
onto a canonical schema, enriches each record with geolocation, reverse
DNS and derived traffic metrics, stores them in DuckDB and scores them
with an isolation forest.

# Application Architecture

The server runs under a Suture v4 supervision tree:

	RootSupervisor ("ipdrlens")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── duckdb-checkpoint
	│   └── geo-cache-gc (only with a persistent geolocation cache)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment variables
 2. Logging: zerolog, bridged to slog for the supervisor
 3. Database: DuckDB record store with versioned migrations
 4. Enrichment: geolocation provider chain, reverse DNS, in-memory and Badger caches
 5. Ingestion and detection services
 6. HTTP API: Chi router with CORS, rate limiting and Prometheus metrics

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains
in-flight requests (uploads and detection runs included) for up to the
configured server timeout, then the enrichment cache and database are
closed.

# Example Usage

	export GEOIP_PROVIDER=ipinfo
	export IPINFO_TOKEN=your-token
	export DUCKDB_PATH=/data/ipdrlens.duckdb
	./ipdrlens

The operator CLI in cmd/ipdrctl works against the same database file
without the server.
*/
package main
