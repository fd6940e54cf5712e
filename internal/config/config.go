// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

// Package config loads IPDRLens configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
	Enrichment EnrichmentConfig `koanf:"enrichment"`
	Detection  DetectionConfig  `koanf:"detection"`
	Ingest     IngestConfig     `koanf:"ingest"`
}

// DatabaseConfig configures the DuckDB record store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB worker count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
	// CheckpointInterval is how often the WAL is folded into the database
	// file by the server; 0 disables periodic checkpoints.
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
}

type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// SecurityConfig holds the HTTP-facing protections. Authentication is
// handled by whatever sits in front of the API.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// EnrichmentConfig controls geolocation and reverse DNS lookups.
type EnrichmentConfig struct {
	// Provider is ipinfo, ipapi, maxmind or none.
	Provider string `koanf:"provider"`
	// FallbackProviders are tried in order when Provider fails.
	FallbackProviders []string `koanf:"fallback_providers"`

	IPInfoToken       string `koanf:"ipinfo_token"`
	MaxMindAccountID  string `koanf:"maxmind_account_id"`
	MaxMindLicenseKey string `koanf:"maxmind_license_key"`

	ReverseDNS bool          `koanf:"reverse_dns"`
	Timeout    time.Duration `koanf:"timeout"`
	Workers    int           `koanf:"workers"`

	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
	// BadgerPath enables the persistent geolocation cache when non-empty.
	BadgerPath string `koanf:"badger_path"`
	// CacheGCInterval schedules Badger value log garbage collection.
	CacheGCInterval time.Duration `koanf:"cache_gc_interval"`

	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// DetectionConfig holds anomaly engine defaults. Requests may override
// contamination, seed and feature set.
type DetectionConfig struct {
	Contamination float64  `koanf:"contamination"`
	RandomSeed    int64    `koanf:"random_seed"`
	NumTrees      int      `koanf:"num_trees"`
	SampleSize    int      `koanf:"sample_size"`
	FeatureSet    []string `koanf:"feature_set"`
}

type IngestConfig struct {
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
	// DeriveUserIDs assigns user1, user2... per source IP when the upload
	// has no user column.
	DeriveUserIDs bool `koanf:"derive_user_ids"`
}

// Load is the entry point used by cmd/.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether server.environment is "production".
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
