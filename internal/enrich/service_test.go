// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/mapping"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// countingProvider answers with a country derived from the IP and fails
// for the IPs in fail. Safe for concurrent use.
type countingProvider struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
	total atomic.Int32
}

func newCountingProvider(fail ...string) *countingProvider {
	p := &countingProvider{calls: map[string]int{}, fail: map[string]bool{}}
	for _, ip := range fail {
		p.fail[ip] = true
	}
	return p
}

func (p *countingProvider) Name() string      { return "counting" }
func (p *countingProvider) IsAvailable() bool { return true }

func (p *countingProvider) Lookup(_ context.Context, ip string) (*models.Geolocation, error) {
	p.total.Add(1)
	p.mu.Lock()
	p.calls[ip]++
	p.mu.Unlock()
	if p.fail[ip] {
		return nil, errors.New("provider unreachable")
	}
	lat, lon := 1.5, 2.5
	return &models.Geolocation{
		IPAddress: ip,
		Country:   "C-" + ip,
		State:     "S-" + ip,
		City:      "T-" + ip,
		Latitude:  &lat,
		Longitude: &lon,
	}, nil
}

func (p *countingProvider) callsFor(ip string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[ip]
}

type fakeResolver struct {
	names map[string][]string
	calls atomic.Int32
}

func (r *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	r.calls.Add(1)
	if names, ok := r.names[addr]; ok {
		return names, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
}

func TestGeolocate_OneProviderCallPerIP(t *testing.T) {
	p := newCountingProvider()
	svc := NewService(Options{Provider: p})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		geo, err := svc.Geolocate(ctx, "8.8.8.8")
		if err != nil {
			t.Fatalf("Geolocate() error = %v", err)
		}
		if geo == nil || geo.Country != "C-8.8.8.8" {
			t.Fatalf("Geolocate() = %+v", geo)
		}
	}
	if got := p.callsFor("8.8.8.8"); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestGeolocate_ConcurrentCallersShareOneLookup(t *testing.T) {
	p := newCountingProvider()
	svc := NewService(Options{Provider: p})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Geolocate(context.Background(), "1.1.1.1"); err != nil {
				t.Errorf("Geolocate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := p.callsFor("1.1.1.1"); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestGeolocate_SkipsPrivateAndInvalid(t *testing.T) {
	p := newCountingProvider()
	svc := NewService(Options{Provider: p})

	for _, ip := range []string{"10.0.0.1", "192.168.1.1", "garbage", ""} {
		geo, err := svc.Geolocate(context.Background(), ip)
		if geo != nil || err != nil {
			t.Errorf("Geolocate(%q) = %v, %v; want nil, nil", ip, geo, err)
		}
	}
	if got := p.total.Load(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
}

func TestGeolocate_FailureIsLookupFailure(t *testing.T) {
	p := newCountingProvider("9.9.9.9")
	svc := NewService(Options{Provider: p})

	geo, err := svc.Geolocate(context.Background(), "9.9.9.9")
	if geo != nil {
		t.Errorf("Geolocate() = %+v, want nil", geo)
	}
	var lf *LookupFailure
	if !errors.As(err, &lf) {
		t.Fatalf("error = %v, want *LookupFailure", err)
	}
	if lf.Kind != KindGeo || lf.IP != "9.9.9.9" {
		t.Errorf("LookupFailure = %+v", lf)
	}

	// Failures are not cached.
	_, _ = svc.Geolocate(context.Background(), "9.9.9.9")
	if got := p.callsFor("9.9.9.9"); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestGeolocate_Timeout(t *testing.T) {
	slow := &blockingProvider{}
	svc := NewService(Options{Provider: slow, Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := svc.Geolocate(context.Background(), "8.8.8.8")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("lookup took %v, timeout not applied", elapsed)
	}
}

type blockingProvider struct{}

func (blockingProvider) Name() string      { return "blocking" }
func (blockingProvider) IsAvailable() bool { return true }
func (blockingProvider) Lookup(ctx context.Context, _ string) (*models.Geolocation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedProvider blocks every lookup until release is closed.
type gatedProvider struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
}

func (*gatedProvider) Name() string      { return "gated" }
func (*gatedProvider) IsAvailable() bool { return true }
func (p *gatedProvider) Lookup(ctx context.Context, ip string) (*models.Geolocation, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return &models.Geolocation{IPAddress: ip, Country: "C-" + ip}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGeolocate_CanceledCallerDoesNotFailOthers(t *testing.T) {
	p := newGatedProvider()
	svc := NewService(Options{Provider: p, Timeout: 5 * time.Second})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Geolocate(firstCtx, "8.8.8.8")
		firstErr <- err
	}()
	<-p.started

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first caller error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first caller still waiting after cancellation")
	}

	type result struct {
		geo *models.Geolocation
		err error
	}
	second := make(chan result, 1)
	go func() {
		geo, err := svc.Geolocate(context.Background(), "8.8.8.8")
		second <- result{geo, err}
	}()
	close(p.release)

	res := <-second
	if res.err != nil {
		t.Fatalf("second caller error = %v, want nil", res.err)
	}
	if res.geo == nil || res.geo.Country != "C-8.8.8.8" {
		t.Errorf("second caller = %+v, want C-8.8.8.8", res.geo)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestReverseDNS(t *testing.T) {
	r := &fakeResolver{names: map[string][]string{
		"93.184.216.34": {"example.com."},
	}}
	svc := NewService(Options{DNS: NewDNSLookup(r, 0, 0)})
	ctx := context.Background()

	name, err := svc.ReverseDNS(ctx, "93.184.216.34")
	if err != nil {
		t.Fatalf("ReverseDNS() error = %v", err)
	}
	if name == nil || *name != "example.com" {
		t.Errorf("ReverseDNS() = %v, want example.com", name)
	}
	_, _ = svc.ReverseDNS(ctx, "93.184.216.34")
	if got := r.calls.Load(); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}

	name, err = svc.ReverseDNS(ctx, "203.0.113.9")
	if name != nil {
		t.Errorf("ReverseDNS(no PTR) = %q, want nil", *name)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	var lf *LookupFailure
	if !errors.As(err, &lf) || lf.Kind != KindDNS {
		t.Errorf("error = %v, want *LookupFailure of kind %s", err, KindDNS)
	}
}

func TestReverseDNS_Disabled(t *testing.T) {
	svc := NewService(Options{})
	name, err := svc.ReverseDNS(context.Background(), "8.8.8.8")
	if name != nil || err != nil {
		t.Errorf("ReverseDNS() = %v, %v; want nil, nil", name, err)
	}
}

func TestGuardedProvider_OpensCircuit(t *testing.T) {
	p := newCountingProvider("8.8.4.4")
	g := NewGuardedProvider(p, 0, 0)

	for i := 0; i < 10; i++ {
		if _, err := g.Lookup(context.Background(), "8.8.4.4"); err == nil {
			t.Fatal("Lookup() error = nil, want failure")
		}
	}
	if g.State() != "open" {
		t.Fatalf("State() = %q, want open", g.State())
	}

	_, err := g.Lookup(context.Background(), "8.8.4.4")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if got := p.total.Load(); got != 10 {
		t.Errorf("provider calls = %d, want 10", got)
	}
}

func TestGuardedProvider_NotFoundKeepsCircuitClosed(t *testing.T) {
	g := NewGuardedProvider(&stubProvider{name: "nf", err: ErrNotFound, available: true}, 0, 0)
	for i := 0; i < 20; i++ {
		_, _ = g.Lookup(context.Background(), "8.8.8.8")
	}
	if g.State() != "closed" {
		t.Errorf("State() = %q, want closed", g.State())
	}
}

func row(values map[mapping.CanonicalField]string) mapping.CanonicalRow {
	r := make(mapping.CanonicalRow, len(mapping.Fields))
	for _, f := range mapping.Fields {
		r[f] = nil
	}
	for f, v := range values {
		r[f] = &v
	}
	return r
}

func TestEnrichBatch_DegradesPerField(t *testing.T) {
	p := newCountingProvider("203.0.113.50")
	svc := NewService(Options{Provider: p})

	rows := []mapping.CanonicalRow{
		row(map[mapping.CanonicalField]string{
			mapping.FieldSourceIP:      "8.8.8.8",
			mapping.FieldStartTime:     "2024-03-01 10:00:00",
			mapping.FieldEndTime:       "2024-03-01 10:05:00",
			mapping.FieldBytesSent:     "1048576",
			mapping.FieldBytesReceived: "0",
		}),
		row(map[mapping.CanonicalField]string{
			mapping.FieldSourceIP:  "8.8.8.8",
			mapping.FieldStartTime: "not a time",
			mapping.FieldEndTime:   "2024-03-01 10:05:00",
		}),
		row(map[mapping.CanonicalField]string{
			mapping.FieldSourceIP:  "203.0.113.50",
			mapping.FieldStartTime: "2024-03-01 11:00:00",
			mapping.FieldEndTime:   "2024-03-01 11:00:10",
		}),
	}

	records, stats := svc.EnrichBatch(context.Background(), rows)
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}

	if records[0].DataVolumeMB == nil || *records[0].DataVolumeMB != 1.0 {
		t.Errorf("row 1 DataVolumeMB = %v, want 1.0", fmtFloat(records[0].DataVolumeMB))
	}
	if records[0].SessionDurationSeconds == nil || *records[0].SessionDurationSeconds != 300 {
		t.Errorf("row 1 SessionDurationSeconds = %v, want 300", fmtFloat(records[0].SessionDurationSeconds))
	}
	if records[1].SessionDurationSeconds != nil {
		t.Errorf("row 2 SessionDurationSeconds = %v, want nil", *records[1].SessionDurationSeconds)
	}
	if records[2].Country != nil || records[2].State != nil || records[2].City != nil {
		t.Errorf("row 3 location = %v/%v/%v, want all nil", records[2].Country, records[2].State, records[2].City)
	}
	if records[0].Country == nil || *records[0].Country != "C-8.8.8.8" {
		t.Errorf("row 1 Country = %v, want C-8.8.8.8", records[0].Country)
	}
	if records[2].RowNumber != 3 {
		t.Errorf("RowNumber = %d, want 3", records[2].RowNumber)
	}

	if stats.GeoFailures != 1 {
		t.Errorf("GeoFailures = %d, want 1", stats.GeoFailures)
	}
	if stats.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", stats.Failures())
	}
	if got := p.callsFor("8.8.8.8"); got != 1 {
		t.Errorf("provider calls for repeated IP = %d, want 1", got)
	}
}

func TestEnrichBatch_SameResultForAnyWorkerCount(t *testing.T) {
	var rows []mapping.CanonicalRow
	for i := 0; i < 60; i++ {
		rows = append(rows, row(map[mapping.CanonicalField]string{
			mapping.FieldSourceIP:      fmt.Sprintf("8.8.%d.%d", i%7, i%3),
			mapping.FieldDestinationIP: fmt.Sprintf("1.1.1.%d", i%4),
			mapping.FieldBytesSent:     fmt.Sprint(i * 1000),
		}))
	}
	resolver := &fakeResolver{names: map[string][]string{
		"1.1.1.0": {"zero.example."},
		"1.1.1.1": {"one.example."},
		"1.1.1.2": {"two.example."},
	}}

	serial := NewService(Options{Provider: newCountingProvider("8.8.3.0"), DNS: NewDNSLookup(resolver, 0, 0), Workers: 1})
	parallel := NewService(Options{Provider: newCountingProvider("8.8.3.0"), DNS: NewDNSLookup(resolver, 0, 0), Workers: 16})

	a, statsA := serial.EnrichBatch(context.Background(), rows)
	b, statsB := parallel.EnrichBatch(context.Background(), rows)

	if statsA != statsB {
		t.Errorf("stats differ: %+v vs %+v", statsA, statsB)
	}
	for i := range a {
		if deref(a[i].Country) != deref(b[i].Country) || deref(a[i].DestinationDomain) != deref(b[i].DestinationDomain) {
			t.Errorf("row %d differs: %v/%v vs %v/%v", i, deref(a[i].Country), deref(a[i].DestinationDomain), deref(b[i].Country), deref(b[i].DestinationDomain))
		}
	}
}

func TestEnrichBatch_OneCallPerUniqueIP(t *testing.T) {
	p := newCountingProvider()
	svc := NewService(Options{Provider: p, Workers: 8})

	var rows []mapping.CanonicalRow
	for i := 0; i < 100; i++ {
		rows = append(rows, row(map[mapping.CanonicalField]string{
			mapping.FieldSourceIP: fmt.Sprintf("9.9.9.%d", i%5),
		}))
	}
	svc.EnrichBatch(context.Background(), rows)
	svc.EnrichBatch(context.Background(), rows)

	if got := p.total.Load(); got != 5 {
		t.Errorf("provider calls = %d, want 5", got)
	}
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestGeolocate_PersistentTier(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	store := NewGeoStoreFromDB(db, time.Hour)
	defer store.Close()

	warm := NewService(Options{Provider: newCountingProvider(), Store: store})
	if _, err := warm.Geolocate(context.Background(), "8.8.8.8"); err != nil {
		t.Fatalf("Geolocate() error = %v", err)
	}

	// A fresh process with an empty LRU and a dead provider still answers.
	dead := newCountingProvider("8.8.8.8")
	cold := NewService(Options{Provider: dead, Store: store})
	geo, err := cold.Geolocate(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("Geolocate() error = %v", err)
	}
	if geo.Country != "C-8.8.8.8" {
		t.Errorf("Country = %q, want C-8.8.8.8", geo.Country)
	}
	if dead.total.Load() != 0 {
		t.Errorf("provider calls = %d, want 0", dead.total.Load())
	}
}

func TestCompactCache(t *testing.T) {
	if err := NewService(Options{}).CompactCache(context.Background()); err != nil {
		t.Errorf("CompactCache() without store error = %v", err)
	}

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	store := NewGeoStoreFromDB(db, time.Hour)
	defer store.Close()

	svc := NewService(Options{Store: store})
	if !svc.HasPersistentCache() {
		t.Error("HasPersistentCache() = false, want true")
	}
	if err := svc.CompactCache(context.Background()); err != nil {
		t.Errorf("CompactCache() on in-memory store error = %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.EnrichmentConfig
		wantName string
		wantErr  bool
	}{
		{"ipinfo", config.EnrichmentConfig{Provider: "ipinfo"}, "ipinfo", false},
		{"none", config.EnrichmentConfig{Provider: "none"}, "", false},
		{"chain", config.EnrichmentConfig{Provider: "ipinfo", FallbackProviders: []string{"ipapi"}}, "ipinfo>ip-api.com", false},
		{"unknown", config.EnrichmentConfig{Provider: "whois"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got := ""
			if p != nil {
				got = p.Name()
			}
			if got != tt.wantName {
				t.Errorf("Name() = %q, want %q", got, tt.wantName)
			}
		})
	}
}
