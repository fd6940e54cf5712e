// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package enrich resolves source-IP geolocation and destination-IP reverse
// DNS for ingested records and computes their derived metrics.
//
// Lookups go through a process-scoped LRU cache (one per lookup kind), an
// optional Badger tier for geolocation, and singleflight, so each unique IP
// reaches the external service at most once while cached. Failures never
// abort a batch: the affected field stays nil and the failure is counted.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/ipdrlens/internal/cache"
	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/mapping"
	"github.com/tomtom215/ipdrlens/internal/metrics"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// Lookup outcomes, used as the "outcome" metric label.
const (
	outcomeSuccess  = "success"
	outcomeNotFound = "not_found"
	outcomeFailure  = "failure"
	outcomeSkipped  = "skipped"
	outcomeCached   = "cached"
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// Provider answers geolocation lookups; nil disables geolocation.
	Provider GeoIPProvider
	// DNS answers reverse lookups; nil disables reverse DNS.
	DNS *DNSLookup
	// Store is the optional persistent geolocation tier.
	Store *GeoStore

	Timeout   time.Duration
	Workers   int
	CacheSize int
	CacheTTL  time.Duration
}

// Service enriches records. It is safe for concurrent use by multiple
// ingestion calls.
type Service struct {
	provider GeoIPProvider
	dns      *DNSLookup
	store    *GeoStore

	geoCache *cache.LRU[*models.Geolocation]
	dnsCache *cache.LRU[string]
	geoGroup singleflight.Group
	dnsGroup singleflight.Group

	timeout time.Duration
	workers int
}

// NewService creates a Service from opts.
func NewService(opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProviderTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &Service{
		provider: opts.Provider,
		dns:      opts.DNS,
		store:    opts.Store,
		geoCache: cache.NewLRU[*models.Geolocation]("geolocation", opts.CacheSize, opts.CacheTTL),
		dnsCache: cache.NewLRU[string]("reverse_dns", opts.CacheSize, opts.CacheTTL),
		timeout:  opts.Timeout,
		workers:  opts.Workers,
	}
}

// NewServiceFromConfig wires providers, breakers, limiters and the optional
// Badger tier from configuration. Call Close when done.
func NewServiceFromConfig(cfg *config.EnrichmentConfig) (*Service, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Timeout:   cfg.Timeout,
		Workers:   cfg.Workers,
		CacheSize: cfg.CacheSize,
		CacheTTL:  cfg.CacheTTL,
	}
	if provider != nil {
		opts.Provider = NewGuardedProvider(provider, cfg.RatePerSecond, cfg.Burst)
	}
	if cfg.ReverseDNS {
		opts.DNS = NewDNSLookup(net.DefaultResolver, 0, 0)
	}
	if cfg.BadgerPath != "" {
		store, err := OpenGeoStore(cfg.BadgerPath, cfg.CacheTTL)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}

	logging.Info().
		Str("provider", cfg.Provider).
		Strs("fallback", cfg.FallbackProviders).
		Bool("reverse_dns", cfg.ReverseDNS).
		Bool("persistent_cache", opts.Store != nil).
		Int("workers", opts.Workers).
		Msg("Enrichment service configured")

	return NewService(opts), nil
}

// NewProvider builds the configured provider followed by its fallbacks.
// It returns nil when the primary provider is "none".
func NewProvider(cfg *config.EnrichmentConfig) (GeoIPProvider, error) {
	names := append([]string{cfg.Provider}, cfg.FallbackProviders...)
	var providers []GeoIPProvider
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "none":
			continue
		case "ipinfo":
			providers = append(providers, NewIPInfoProvider(cfg.IPInfoToken, cfg.Timeout))
		case "ipapi", "ip-api":
			providers = append(providers, NewIPAPIProvider(cfg.Timeout))
		case "maxmind":
			providers = append(providers, NewMaxMindProvider(cfg.MaxMindAccountID, cfg.MaxMindLicenseKey, cfg.Timeout))
		default:
			return nil, fmt.Errorf("unknown geolocation provider %q", name)
		}
	}
	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	default:
		return NewChainProvider(providers...), nil
	}
}

// Close releases the persistent cache, if any.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// HasPersistentCache reports whether a Badger tier is configured.
func (s *Service) HasPersistentCache() bool {
	return s.store != nil
}

// CompactCache runs garbage collection on the persistent cache. It is a
// no-op without one.
func (s *Service) CompactCache(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	n, err := s.store.RunGC()
	if err != nil {
		return err
	}
	if n > 0 {
		logging.Ctx(ctx).Debug().Int("files_rewritten", n).Msg("Geolocation cache compacted")
	}
	return nil
}

// Geolocate returns the location of a source IP.
//
// Private, invalid or empty addresses return (nil, nil) without a lookup.
// Provider errors and timeouts return nil and a *LookupFailure. Successful
// answers are cached; failures are not, so a recovered provider is retried
// by the next batch.
//
// Concurrent callers for one IP share a lookup that runs detached from any
// single caller's cancellation, bounded by the service timeout. A caller
// whose ctx ends stops waiting without failing the others.
func (s *Service) Geolocate(ctx context.Context, ip string) (*models.Geolocation, error) {
	ip = NormalizeIP(ip)
	if s.provider == nil || !IsValidPublicIP(ip) {
		metrics.RecordLookup(KindGeo, outcomeSkipped, 0)
		return nil, nil
	}

	if geo, ok := s.geoCache.Get(ip); ok {
		metrics.RecordLookup(KindGeo, outcomeCached, 0)
		return geo, nil
	}

	shared := context.WithoutCancel(ctx)
	v, err := awaitShared(ctx, s.geoGroup.DoChan(ip, func() (interface{}, error) {
		if geo, ok := s.geoCache.Get(ip); ok {
			return geo, nil
		}
		if geo := s.fromStore(shared, ip); geo != nil {
			s.geoCache.Add(ip, geo)
			return geo, nil
		}

		lookupCtx, cancel := context.WithTimeout(shared, s.timeout)
		defer cancel()

		start := time.Now()
		geo, err := s.provider.Lookup(lookupCtx, ip)
		if err != nil {
			metrics.RecordLookup(KindGeo, lookupOutcome(err), time.Since(start))
			return nil, err
		}
		metrics.RecordLookup(KindGeo, outcomeSuccess, time.Since(start))

		s.geoCache.Add(ip, geo)
		s.toStore(shared, geo)
		return geo, nil
	}))
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("ip", ip).Msg("Geolocation lookup failed")
		return nil, &LookupFailure{Kind: KindGeo, IP: ip, Err: err}
	}
	return v.(*models.Geolocation), nil
}

// ReverseDNS returns the hostname of a destination IP, with the same skip
// and failure policy as Geolocate.
func (s *Service) ReverseDNS(ctx context.Context, ip string) (*string, error) {
	ip = NormalizeIP(ip)
	if s.dns == nil || !IsValidPublicIP(ip) {
		metrics.RecordLookup(KindDNS, outcomeSkipped, 0)
		return nil, nil
	}

	if name, ok := s.dnsCache.Get(ip); ok {
		metrics.RecordLookup(KindDNS, outcomeCached, 0)
		return &name, nil
	}

	shared := context.WithoutCancel(ctx)
	v, err := awaitShared(ctx, s.dnsGroup.DoChan(ip, func() (interface{}, error) {
		if name, ok := s.dnsCache.Get(ip); ok {
			return name, nil
		}

		lookupCtx, cancel := context.WithTimeout(shared, s.timeout)
		defer cancel()

		start := time.Now()
		name, err := s.dns.Lookup(lookupCtx, ip)
		if err != nil {
			metrics.RecordLookup(KindDNS, lookupOutcome(err), time.Since(start))
			return nil, err
		}
		metrics.RecordLookup(KindDNS, outcomeSuccess, time.Since(start))

		s.dnsCache.Add(ip, name)
		return name, nil
	}))
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("ip", ip).Msg("Reverse DNS lookup failed")
		return nil, &LookupFailure{Kind: KindDNS, IP: ip, Err: err}
	}
	name := v.(string)
	return &name, nil
}

// awaitShared waits for a singleflight result or for ctx to end.
func awaitShared(ctx context.Context, ch <-chan singleflight.Result) (interface{}, error) {
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func lookupOutcome(err error) string {
	if errors.Is(err, ErrNotFound) {
		return outcomeNotFound
	}
	return outcomeFailure
}

func (s *Service) fromStore(ctx context.Context, ip string) *models.Geolocation {
	if s.store == nil {
		return nil
	}
	geo, err := s.store.Get(ip)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ip", ip).Msg("Failed to read persistent geolocation cache")
		return nil
	}
	return geo
}

func (s *Service) toStore(ctx context.Context, geo *models.Geolocation) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(geo); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ip", geo.IPAddress).Msg("Failed to write persistent geolocation cache")
	}
}

// EnrichmentStats counts field-level lookup failures in one batch. Counts
// are per row, so an IP that appears in ten rows and fails counts ten times.
type EnrichmentStats struct {
	GeoFailures        int `json:"geo_failures"`
	ReverseDNSFailures int `json:"reverse_dns_failures"`
	// Skipped counts lookups not attempted for private or invalid IPs.
	Skipped int `json:"skipped_lookups"`
}

// Failures is the total number of degraded fields.
func (s EnrichmentStats) Failures() int {
	return s.GeoFailures + s.ReverseDNSFailures
}

type lookupResult[T any] struct {
	value   T
	failed  bool
	skipped bool
}

// EnrichBatch builds a record per row and fills geolocation, destination
// domain and derived metrics.
//
// Lookups fan out over the unique IPs of the batch with at most Workers in
// flight. Results are written by index, so the output does not depend on
// scheduling or worker count.
func (s *Service) EnrichBatch(ctx context.Context, rows []mapping.CanonicalRow) ([]models.EnrichedRecord, EnrichmentStats) {
	records := make([]models.EnrichedRecord, len(rows))
	for i, row := range rows {
		records[i] = BuildRecord(row, i+1)
	}

	srcIPs, srcIndex := uniqueIPs(records, func(r *models.EnrichedRecord) *string { return r.SourceIP })
	dstIPs, dstIndex := uniqueIPs(records, func(r *models.EnrichedRecord) *string { return r.DestinationIP })

	geoResults := make([]lookupResult[*models.Geolocation], len(srcIPs))
	dnsResults := make([]lookupResult[*string], len(dstIPs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, ip := range srcIPs {
		g.Go(func() error {
			geo, err := s.Geolocate(gctx, ip)
			geoResults[i] = lookupResult[*models.Geolocation]{value: geo, failed: err != nil, skipped: geo == nil && err == nil}
			return nil
		})
	}
	for i, ip := range dstIPs {
		g.Go(func() error {
			name, err := s.ReverseDNS(gctx, ip)
			dnsResults[i] = lookupResult[*string]{value: name, failed: err != nil, skipped: name == nil && err == nil}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var stats EnrichmentStats
	for i := range records {
		if idx, ok := srcIndex[i]; ok {
			res := geoResults[idx]
			records[i].ApplyGeolocation(res.value)
			stats.add(res.failed, res.skipped, &stats.GeoFailures)
		}
		if idx, ok := dstIndex[i]; ok {
			res := dnsResults[idx]
			records[i].DestinationDomain = res.value
			stats.add(res.failed, res.skipped, &stats.ReverseDNSFailures)
		}
	}

	logging.Ctx(ctx).Debug().
		Int("rows", len(records)).
		Int("unique_source_ips", len(srcIPs)).
		Int("unique_destination_ips", len(dstIPs)).
		Int("geo_failures", stats.GeoFailures).
		Int("rdns_failures", stats.ReverseDNSFailures).
		Msg("Batch enriched")

	return records, stats
}

func (s *EnrichmentStats) add(failed, skipped bool, counter *int) {
	switch {
	case failed:
		*counter++
	case skipped:
		s.Skipped++
	}
}

// uniqueIPs returns the distinct non-empty IPs in first-appearance order and
// a map from record index to position in that list.
func uniqueIPs(records []models.EnrichedRecord, field func(*models.EnrichedRecord) *string) ([]string, map[int]int) {
	var ips []string
	seen := make(map[string]int)
	index := make(map[int]int, len(records))
	for i := range records {
		ip := field(&records[i])
		if ip == nil || *ip == "" {
			continue
		}
		pos, ok := seen[*ip]
		if !ok {
			pos = len(ips)
			seen[*ip] = pos
			ips = append(ips, *ip)
		}
		index[i] = pos
	}
	return ips, index
}
