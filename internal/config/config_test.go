package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Tracking.ReportRetention != 5*time.Minute || cfg.Tracking.SpeedRetention != 30*time.Minute {
		t.Errorf("tracking = %+v", cfg.Tracking)
	}
	if cfg.Sighting.MaxAgeSeconds != 600 {
		t.Errorf("MaxAgeSeconds = %d, want 600", cfg.Sighting.MaxAgeSeconds)
	}
	if cfg.Routing.TransferPenaltySeconds != 120 {
		t.Errorf("TransferPenaltySeconds = %d, want 120", cfg.Routing.TransferPenaltySeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("METROTRACK_PORT", "9090")
	t.Setenv("METROTRACK_LOG_LEVEL", "DEBUG")
	t.Setenv("METROTRACK_STALE_AFTER", "90s")
	t.Setenv("METROTRACK_REDIS_ENABLED", "true")
	t.Setenv("METROTRACK_SIGHTING_MAX_AGE", "not-a-number")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Tracking.StaleAfter != 90*time.Second {
		t.Errorf("StaleAfter = %v, want 90s", cfg.Tracking.StaleAfter)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis should be enabled")
	}
	if cfg.Sighting.MaxAgeSeconds != 600 {
		t.Errorf("unparsable env should fall back, got %d", cfg.Sighting.MaxAgeSeconds)
	}
}

func TestLoadFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrotrack.yml")
	yml := `
port: 7070
log_format: json
tracking:
  stale_after: 2m
feed:
  vehicle_positions_url: https://example.com/vehicle-positions.pb
  city_id: delhi
  poll_interval: 15s
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 7070 || cfg.LogFormat != "json" {
		t.Errorf("port/format = %d/%s", cfg.Port, cfg.LogFormat)
	}
	if cfg.Tracking.StaleAfter != 2*time.Minute {
		t.Errorf("StaleAfter = %v, want 2m", cfg.Tracking.StaleAfter)
	}
	if cfg.Tracking.ReportRetention != 5*time.Minute {
		t.Errorf("absent key changed ReportRetention to %v", cfg.Tracking.ReportRetention)
	}
	if cfg.Feed.PollInterval != 15*time.Second || cfg.Feed.CityID != "delhi" {
		t.Errorf("feed = %+v", cfg.Feed)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Load()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(bad, []byte("port: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFile(bad); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero retention", func(c *Config) { c.Tracking.ReportRetention = 0 }},
		{"negative penalty", func(c *Config) { c.Routing.TransferPenaltySeconds = -1 }},
		{"zero penalty", func(c *Config) { c.Routing.TransferPenaltySeconds = 0 }},
		{"feed without city", func(c *Config) { c.Feed.VehiclePositionsURL = "https://example.com/vp.pb"; c.Feed.CityID = "" }},
		{"feed url malformed", func(c *Config) { c.Feed.VehiclePositionsURL = "not a url"; c.Feed.CityID = "delhi" }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		c := &Config{LogLevel: tt.level}
		if got := c.slogLevel(); got != tt.want {
			t.Errorf("slogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
