// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be >= 0")
	}
	if c.Database.CheckpointInterval < 0 {
		return fmt.Errorf("DUCKDB_CHECKPOINT_INTERVAL must be >= 0")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

var validProviders = map[string]bool{
	"ipinfo":  true,
	"ipapi":   true,
	"maxmind": true,
	"none":    true,
}

func (c *Config) validateEnrichment() error {
	e := c.Enrichment
	if !validProviders[e.Provider] {
		return fmt.Errorf("GEOIP_PROVIDER must be one of: ipinfo, ipapi, maxmind, none")
	}
	for _, p := range e.FallbackProviders {
		if !validProviders[p] || p == "none" {
			return fmt.Errorf("GEOIP_FALLBACK_PROVIDERS contains unknown provider %q", p)
		}
	}
	usesMaxMind := e.Provider == "maxmind"
	for _, p := range e.FallbackProviders {
		usesMaxMind = usesMaxMind || p == "maxmind"
	}
	if usesMaxMind && (e.MaxMindAccountID == "" || e.MaxMindLicenseKey == "") {
		return fmt.Errorf("MAXMIND_ACCOUNT_ID and MAXMIND_LICENSE_KEY are required for the maxmind provider")
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("ENRICHMENT_TIMEOUT must be positive")
	}
	if e.Workers < 1 || e.Workers > 256 {
		return fmt.Errorf("ENRICHMENT_WORKERS must be between 1 and 256")
	}
	if e.CacheSize < 1 {
		return fmt.Errorf("ENRICHMENT_CACHE_SIZE must be at least 1")
	}
	if e.RatePerSecond < 0 {
		return fmt.Errorf("ENRICHMENT_RATE must be >= 0")
	}
	return nil
}

// validFeatures mirrors the detection package's feature names. Kept here
// to avoid an import cycle.
var validFeatures = map[string]bool{
	"session_duration_seconds": true,
	"data_volume_mb":           true,
	"hour_of_day":              true,
	"day_of_week":              true,
	"src_avg_duration":         true,
	"src_std_duration":         true,
	"src_avg_volume":           true,
	"src_std_volume":           true,
	"unique_dest_count":        true,
}

func (c *Config) validateDetection() error {
	d := c.Detection
	if d.Contamination <= 0 || d.Contamination > 0.5 {
		return fmt.Errorf("DETECTION_CONTAMINATION must be in (0, 0.5]")
	}
	if d.NumTrees < 1 {
		return fmt.Errorf("DETECTION_NUM_TREES must be at least 1")
	}
	if d.SampleSize < 2 {
		return fmt.Errorf("DETECTION_SAMPLE_SIZE must be at least 2")
	}
	for _, f := range d.FeatureSet {
		if !validFeatures[f] {
			return fmt.Errorf("DETECTION_FEATURE_SET contains unknown feature %q", f)
		}
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.MaxUploadBytes < 1024 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be at least 1024")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
