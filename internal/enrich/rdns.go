// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Resolver performs PTR lookups. *net.Resolver satisfies it.
type Resolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// DNSLookup resolves an IP to its first PTR name, guarded by its own
// breaker and limiter so a dead resolver does not stall ingestion.
type DNSLookup struct {
	resolver Resolver
	cb       *gobreaker.CircuitBreaker[string]
	limiter  *rate.Limiter
}

// NewDNSLookup wraps r. A nil r uses net.DefaultResolver.
func NewDNSLookup(r Resolver, rps float64, burst int) *DNSLookup {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DNSLookup{
		resolver: r,
		cb:       newCircuitBreaker[string]("reverse-dns"),
		limiter:  newLimiter(rps, burst),
	}
}

// Lookup returns the hostname for ip without its trailing dot.
func (d *DNSLookup) Lookup(ctx context.Context, ip string) (string, error) {
	if err := wait(ctx, d.limiter); err != nil {
		return "", err
	}
	return execute(d.cb, func() (string, error) {
		names, err := d.resolver.LookupAddr(ctx, ip)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return "", ErrNotFound
			}
			return "", err
		}
		for _, name := range names {
			if name = strings.TrimSuffix(strings.TrimSpace(name), "."); name != "" {
				return name, nil
			}
		}
		return "", ErrNotFound
	})
}
