// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package detection scores enriched IPDR sessions for anomalous behaviour
// with an unsupervised isolation forest.
//
// Detection Architecture:
//
//	EnrichedRecord -> features -> StandardScaler -> IsolationForest -> threshold -> AnomalyResult
//	                     |
//	                     v
//	     per-source aggregates, destinations per (source, clock hour)
//
// Each run fits a fresh model on the records in scope; nothing is carried
// between runs. With a fixed seed and the same record order, scores are
// bit-identical across runs.
//
// Thresholding:
//   - Contamination c in (0, 0.5]: the top ceil(c x eligible) scores are
//     flagged. Ties at the cut-off are all flagged.
//   - Auto mode (no contamination): scores above 0.5 are flagged.
//
// Records missing a selected feature are reported unscored and never
// flagged.
package detection
