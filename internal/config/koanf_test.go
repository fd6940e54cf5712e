// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path != "/data/ipdrlens.duckdb" {
		t.Errorf("Database.Path = %q, want /data/ipdrlens.duckdb", cfg.Database.Path)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("Server.Port = %d, want 8088", cfg.Server.Port)
	}
	if cfg.Enrichment.Provider != "ipinfo" {
		t.Errorf("Enrichment.Provider = %q, want ipinfo", cfg.Enrichment.Provider)
	}
	if cfg.Enrichment.Timeout != 5*time.Second {
		t.Errorf("Enrichment.Timeout = %v, want 5s", cfg.Enrichment.Timeout)
	}
	if cfg.Detection.Contamination != 0.10 {
		t.Errorf("Detection.Contamination = %v, want 0.10", cfg.Detection.Contamination)
	}
	if cfg.Detection.RandomSeed != 42 {
		t.Errorf("Detection.RandomSeed = %d, want 42", cfg.Detection.RandomSeed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig().Validate() = %v, want nil", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"DUCKDB_PATH", "database.path"},
		{"HTTP_PORT", "server.port"},
		{"IPINFO_TOKEN", "enrichment.ipinfo_token"},
		{"DETECTION_CONTAMINATION", "detection.contamination"},
		{"log_level", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if got := findConfigFile(); got != "" {
			t.Errorf("findConfigFile() = %q, want empty", got)
		}
	})

	t.Run("CONFIG_PATH wins", func(t *testing.T) {
		custom := filepath.Join(tmpDir, "custom.yaml")
		if err := os.WriteFile(custom, []byte("server:\n  port: 1\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(ConfigPathEnvVar, custom)
		if got := findConfigFile(); got != custom {
			t.Errorf("findConfigFile() = %q, want %q", got, custom)
		}
	})
}

func TestLoadWithKoanfEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	content := `
server:
  port: 9100
enrichment:
  provider: ipapi
  workers: 4
detection:
  contamination: 0.2
logging:
  level: warn
`
	path := filepath.Join(tmpDir, "ipdrlens.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9200")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DETECTION_FEATURE_SET", "session_duration_seconds,data_volume_mb")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200 (env beats file)", cfg.Server.Port)
	}
	if cfg.Enrichment.Provider != "ipapi" {
		t.Errorf("Enrichment.Provider = %q, want ipapi", cfg.Enrichment.Provider)
	}
	if cfg.Enrichment.Workers != 4 {
		t.Errorf("Enrichment.Workers = %d, want 4", cfg.Enrichment.Workers)
	}
	if cfg.Detection.Contamination != 0.2 {
		t.Errorf("Detection.Contamination = %v, want 0.2", cfg.Detection.Contamination)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Security.CORSOrigins = %v, want two trimmed origins", cfg.Security.CORSOrigins)
	}
	if len(cfg.Detection.FeatureSet) != 2 {
		t.Errorf("Detection.FeatureSet = %v, want 2 entries", cfg.Detection.FeatureSet)
	}
	if cfg.Database.MaxMemory != "2GB" {
		t.Errorf("Database.MaxMemory = %q, want 2GB (default)", cfg.Database.MaxMemory)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"empty db path", func(c *Config) { c.Database.Path = " " }, "DUCKDB_PATH"},
		{"unknown provider", func(c *Config) { c.Enrichment.Provider = "whois" }, "GEOIP_PROVIDER"},
		{"maxmind without key", func(c *Config) { c.Enrichment.Provider = "maxmind" }, "MAXMIND"},
		{"maxmind fallback without key", func(c *Config) { c.Enrichment.FallbackProviders = []string{"maxmind"} }, "MAXMIND"},
		{"zero workers", func(c *Config) { c.Enrichment.Workers = 0 }, "ENRICHMENT_WORKERS"},
		{"zero timeout", func(c *Config) { c.Enrichment.Timeout = 0 }, "ENRICHMENT_TIMEOUT"},
		{"contamination too high", func(c *Config) { c.Detection.Contamination = 0.6 }, "DETECTION_CONTAMINATION"},
		{"contamination zero", func(c *Config) { c.Detection.Contamination = 0 }, "DETECTION_CONTAMINATION"},
		{"unknown feature", func(c *Config) { c.Detection.FeatureSet = []string{"port"} }, "DETECTION_FEATURE_SET"},
		{"rate limit disabled skips bounds", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, ""},
		{"rate limit window", func(c *Config) { c.Security.RateLimitWindow = time.Millisecond }, "RATE_LIMIT_WINDOW"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"upload limit", func(c *Config) { c.Ingest.MaxUploadBytes = 10 }, "MAX_UPLOAD_BYTES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
