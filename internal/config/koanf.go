// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ipdrlens/config.yaml",
	"/etc/ipdrlens/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:               "/data/ipdrlens.duckdb",
			MaxMemory:          "2GB",
			Threads:            0,
			CheckpointInterval: 5 * time.Minute,
		},
		Server: ServerConfig{
			Port:        8088,
			Host:        "0.0.0.0",
			Timeout:     60 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Enrichment: EnrichmentConfig{
			Provider:          "ipinfo",
			FallbackProviders: []string{},
			ReverseDNS:        true,
			Timeout:           5 * time.Second,
			Workers:           8,
			CacheSize:         10000,
			CacheTTL:          24 * time.Hour,
			CacheGCInterval:   10 * time.Minute,
			RatePerSecond:     20,
			Burst:             20,
		},
		Detection: DetectionConfig{
			Contamination: 0.10,
			RandomSeed:    42,
			NumTrees:      100,
			SampleSize:    256,
			FeatureSet:    []string{},
		},
		Ingest: IngestConfig{
			MaxUploadBytes: 50 << 20,
			DeriveUserIDs:  true,
		},
	}
}

// LoadWithKoanf layers defaults, the optional YAML file and environment
// variables, then validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"enrichment.fallback_providers",
	"detection.feature_set",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Anything not listed is ignored so unrelated variables never leak in.
var envMappings = map[string]string{
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"duckdb_checkpoint_interval": "database.checkpoint_interval",

	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"geoip_provider":           "enrichment.provider",
	"geoip_fallback_providers": "enrichment.fallback_providers",
	"ipinfo_token":             "enrichment.ipinfo_token",
	"maxmind_account_id":       "enrichment.maxmind_account_id",
	"maxmind_license_key":      "enrichment.maxmind_license_key",
	"enable_reverse_dns":       "enrichment.reverse_dns",
	"enrichment_timeout":       "enrichment.timeout",
	"enrichment_workers":       "enrichment.workers",
	"enrichment_cache_size":    "enrichment.cache_size",
	"enrichment_cache_ttl":     "enrichment.cache_ttl",
	"enrichment_badger_path":   "enrichment.badger_path",
	"enrichment_cache_gc":      "enrichment.cache_gc_interval",
	"enrichment_rate":          "enrichment.rate_per_second",
	"enrichment_burst":         "enrichment.burst",

	"detection_contamination": "detection.contamination",
	"detection_random_seed":   "detection.random_seed",
	"detection_num_trees":     "detection.num_trees",
	"detection_sample_size":   "detection.sample_size",
	"detection_feature_set":   "detection.feature_set",

	"max_upload_bytes": "ingest.max_upload_bytes",
	"derive_user_ids":  "ingest.derive_user_ids",
}

// envTransformFunc maps e.g. HTTP_PORT to server.port. Unmapped keys
// return "" and are dropped by the env provider.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
