// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package enrich

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/models"
)

// GeoIPProvider looks up the location of a public IP address.
type GeoIPProvider interface {
	// Lookup returns the location of ipAddress. ErrNotFound means the
	// provider answered without data.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name identifies the provider in logs and metrics.
	Name() string

	// IsAvailable reports whether the provider is configured.
	IsAvailable() bool
}

const defaultProviderTimeout = 5 * time.Second

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &http.Client{Timeout: timeout}
}

func validateLookupIP(ipAddress string) error {
	if net.ParseIP(ipAddress) == nil {
		return fmt.Errorf("invalid IP address: %s", ipAddress)
	}
	return nil
}

// ========================================
// ipinfo.io
// ========================================

// IPInfoProvider queries ipinfo.io. The token is optional; anonymous use is
// limited to a small daily quota.
type IPInfoProvider struct {
	client  *http.Client
	token   string
	baseURL string
}

type ipInfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Loc     string `json:"loc"` // "lat,long"
	Org     string `json:"org"`
	Bogon   bool   `json:"bogon"`
}

// NewIPInfoProvider creates an ipinfo.io provider.
func NewIPInfoProvider(token string, timeout time.Duration) *IPInfoProvider {
	return &IPInfoProvider{
		client:  newHTTPClient(timeout),
		token:   token,
		baseURL: "https://ipinfo.io",
	}
}

func (p *IPInfoProvider) Name() string { return "ipinfo" }

func (p *IPInfoProvider) IsAvailable() bool { return true }

func (p *IPInfoProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if err := validateLookupIP(ipAddress); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/json", p.baseURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ipinfo.io: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("ipinfo.io returned status %d", resp.StatusCode)
	}

	var result ipInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ipinfo.io response: %w", err)
	}
	if result.Bogon {
		return nil, ErrNotFound
	}

	geo := &models.Geolocation{
		IPAddress: ipAddress,
		Country:   result.Country,
		State:     result.Region,
		City:      result.City,
		Provider:  p.Name(),
	}
	geo.Latitude, geo.Longitude = parseLoc(result.Loc)
	return geo, nil
}

// parseLoc splits ipinfo's "lat,long" pair. Malformed input yields nils.
func parseLoc(loc string) (lat, lon *float64) {
	latStr, lonStr, ok := strings.Cut(loc, ",")
	if !ok {
		return nil, nil
	}
	la, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lo, errLon := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if errLat != nil || errLon != nil {
		return nil, nil
	}
	return &la, &lo
}

// ========================================
// ip-api.com (free, no key)
// ========================================

// IPAPIProvider queries the free ip-api.com endpoint. The free tier allows
// 45 requests per minute; size the shared limiter accordingly.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
}

type ipAPIResponse struct {
	Status     string  `json:"status"` // "success" or "fail"
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Query      string  `json:"query"`
}

// NewIPAPIProvider creates an ip-api.com provider.
func NewIPAPIProvider(timeout time.Duration) *IPAPIProvider {
	return &IPAPIProvider{
		client:  newHTTPClient(timeout),
		baseURL: "http://ip-api.com/json",
	}
}

func (p *IPAPIProvider) Name() string { return "ip-api.com" }

func (p *IPAPIProvider) IsAvailable() bool { return true }

func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if err := validateLookupIP(ipAddress); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,lat,lon,query", p.baseURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}
	if result.Status != "success" {
		// "private range", "reserved range" and "invalid query" all mean
		// there is nothing to find.
		logging.Debug().Str("ip", ipAddress).Str("message", result.Message).Msg("ip-api.com lookup failed")
		return nil, ErrNotFound
	}

	lat, lon := result.Lat, result.Lon
	return &models.Geolocation{
		IPAddress: ipAddress,
		Country:   result.Country,
		State:     result.RegionName,
		City:      result.City,
		Latitude:  &lat,
		Longitude: &lon,
		Provider:  p.Name(),
	}, nil
}

// ========================================
// MaxMind GeoLite2 web service
// ========================================

// MaxMindProvider queries MaxMind's GeoLite2 City web service using an
// account ID and license key (basic auth).
type MaxMindProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Subdivisions []struct {
		Names map[string]string `json:"names"`
	} `json:"subdivisions"`
}

type maxMindErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindProvider creates a GeoLite2 web service provider.
func NewMaxMindProvider(accountID, licenseKey string, timeout time.Duration) *MaxMindProvider {
	return &MaxMindProvider{
		client:     newHTTPClient(timeout),
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    "https://geolite.info/geoip/v2.1/city",
	}
}

func (p *MaxMindProvider) Name() string { return "maxmind-geolite2" }

// IsAvailable returns true if account ID and license key are configured.
func (p *MaxMindProvider) IsAvailable() bool {
	return p.accountID != "" && p.licenseKey != ""
}

func (p *MaxMindProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("MaxMind credentials not configured")
	}
	if err := validateLookupIP(ipAddress); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query MaxMind: %w", err)
	}
	defer resp.Body.Close()

	if err := checkMaxMindResponse(resp); err != nil {
		return nil, err
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode MaxMind response: %w", err)
	}

	lat, lon := result.Location.Latitude, result.Location.Longitude
	geo := &models.Geolocation{
		IPAddress: ipAddress,
		Country:   result.Country.ISOCode,
		City:      result.City.Names["en"],
		Latitude:  &lat,
		Longitude: &lon,
		Provider:  p.Name(),
	}
	if len(result.Subdivisions) > 0 {
		geo.State = result.Subdivisions[0].Names["en"]
	}
	return geo, nil
}

func checkMaxMindResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errResp maxMindErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		// IP_ADDRESS_NOT_FOUND and IP_ADDRESS_RESERVED are answers, not outages.
		if errResp.Code == "IP_ADDRESS_NOT_FOUND" || errResp.Code == "IP_ADDRESS_RESERVED" {
			return ErrNotFound
		}
		return fmt.Errorf("MaxMind error (%s): %s", errResp.Code, errResp.Error)
	}

	return fmt.Errorf("MaxMind returned status %d", resp.StatusCode)
}

// ========================================
// Fallback chain
// ========================================

// ChainProvider tries each available provider in order and returns the
// first answer.
type ChainProvider struct {
	providers []GeoIPProvider
}

// NewChainProvider creates a fallback chain.
func NewChainProvider(providers ...GeoIPProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ">")
}

func (c *ChainProvider) IsAvailable() bool {
	for _, p := range c.providers {
		if p.IsAvailable() {
			return true
		}
	}
	return false
}

func (c *ChainProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	var lastErr error
	for _, provider := range c.providers {
		if !provider.IsAvailable() {
			continue
		}
		geo, err := provider.Lookup(ctx, ipAddress)
		if err != nil {
			logging.Debug().Err(err).Str("provider", provider.Name()).Str("ip", ipAddress).Msg("GeoIP provider failed")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return geo, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all GeoIP providers failed for %s: %w", ipAddress, lastErr)
	}
	return nil, ErrNoProvider
}
