// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package services adapts components to suture.Service.
//
//   - HTTPServerService turns ListenAndServe/Shutdown into a context-aware
//     Serve with graceful shutdown.
//   - PeriodicService runs a task on a fixed interval, used for DuckDB
//     checkpoints and Badger value log GC.
//
// Both take small interfaces or funcs rather than concrete types, so the
// services can be tested without a database or a listening socket.
package services
