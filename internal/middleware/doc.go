// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

/*
Package middleware provides the HTTP middleware shared by the API router.

Key Components:

  - RequestID: reuses an upstream X-Request-ID or generates one, and stores it
    in the logging context so every log line of the request carries it
  - PrometheusMetrics: request count, latency and in-flight gauge labelled by
    chi route pattern
  - Compression: gzip for JSON responses when the client accepts it

All three have the standard func(http.Handler) http.Handler shape and are
mounted with chi's r.Use:

	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.With(middleware.Compression).Get("/records", h.Records)

Endpoint labels use the matched route pattern ("/api/v1/batches/{id}") rather
than the raw path, so label cardinality stays bounded.
*/
package middleware
