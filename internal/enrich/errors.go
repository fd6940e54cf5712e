// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"errors"
	"fmt"
)

// Lookup kinds, also used as the "kind" metric label.
const (
	KindGeo = "geo"
	KindDNS = "rdns"
)

var (
	// ErrNotFound means the service answered but knows nothing about the IP.
	// It does not count against a provider's circuit breaker.
	ErrNotFound = errors.New("no data for address")

	// ErrNoProvider is returned when every configured provider is unavailable.
	ErrNoProvider = errors.New("no lookup provider available")
)

// LookupFailure reports a geolocation or reverse DNS lookup that degraded a
// single field to null. It never aborts a batch.
type LookupFailure struct {
	Kind string
	IP   string
	Err  error
}

func (e *LookupFailure) Error() string {
	return fmt.Sprintf("%s lookup failed for %s: %v", e.Kind, e.IP, e.Err)
}

func (e *LookupFailure) Unwrap() error {
	return e.Err
}
