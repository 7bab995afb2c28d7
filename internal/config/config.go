package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration from environment variables,
// optionally overlaid by a YAML file.
type Config struct {
	Port      int    `yaml:"port" validate:"min=1,max=65535"`
	DBPath    string `yaml:"db_path" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	Tracking TrackingConfig `yaml:"tracking"`
	Sighting SightingConfig `yaml:"sighting"`
	Routing  RoutingConfig  `yaml:"routing"`
	Feed     FeedConfig     `yaml:"feed"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// TrackingConfig tunes the live train tracker.
type TrackingConfig struct {
	ReportRetention time.Duration `yaml:"report_retention" validate:"gt=0"`
	StaleAfter      time.Duration `yaml:"stale_after" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gt=0"`
	SpeedRetention  time.Duration `yaml:"speed_retention" validate:"gt=0"`
}

// SightingConfig tunes the sighting estimator.
type SightingConfig struct {
	MaxAgeSeconds int `yaml:"max_age_seconds" validate:"gt=0"`
}

// RoutingConfig tunes journey planning.
type RoutingConfig struct {
	TransferPenaltySeconds int           `yaml:"transfer_penalty_seconds" validate:"gt=0"`
	CacheTTL               time.Duration `yaml:"cache_ttl" validate:"gt=0"`
}

// FeedConfig points at an optional GTFS-RT VehiclePositions feed.
type FeedConfig struct {
	VehiclePositionsURL string        `yaml:"vehicle_positions_url" validate:"omitempty,url"`
	CityID              string        `yaml:"city_id" validate:"required_with=VehiclePositionsURL"`
	PollInterval        time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

// RedisConfig enables the shared route cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" validate:"required_if=Enabled true"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// HTTPConfig holds server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:      envInt("METROTRACK_PORT", 8080),
		DBPath:    envStr("METROTRACK_DB_PATH", "./metrotrack.db"),
		LogLevel:  strings.ToLower(envStr("METROTRACK_LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envStr("METROTRACK_LOG_FORMAT", "text")),
		Tracking: TrackingConfig{
			ReportRetention: envDuration("METROTRACK_REPORT_RETENTION", 5*time.Minute),
			StaleAfter:      envDuration("METROTRACK_STALE_AFTER", 5*time.Minute),
			CleanupInterval: envDuration("METROTRACK_CLEANUP_INTERVAL", 5*time.Minute),
			SpeedRetention:  envDuration("METROTRACK_SPEED_RETENTION", 30*time.Minute),
		},
		Sighting: SightingConfig{
			MaxAgeSeconds: envInt("METROTRACK_SIGHTING_MAX_AGE", 600),
		},
		Routing: RoutingConfig{
			TransferPenaltySeconds: envInt("METROTRACK_TRANSFER_PENALTY", 120),
			CacheTTL:               envDuration("METROTRACK_ROUTE_CACHE_TTL", 10*time.Minute),
		},
		Feed: FeedConfig{
			VehiclePositionsURL: envStr("METROTRACK_GTFSRT_URL", ""),
			CityID:              envStr("METROTRACK_GTFSRT_CITY", ""),
			PollInterval:        envDuration("METROTRACK_GTFSRT_INTERVAL", 30*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  envBool("METROTRACK_REDIS_ENABLED", false),
			Addr:     envStr("METROTRACK_REDIS_ADDR", "localhost:6379"),
			Password: envStr("METROTRACK_REDIS_PASSWORD", ""),
			DB:       envInt("METROTRACK_REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     envDuration("METROTRACK_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    envDuration("METROTRACK_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: envDuration("METROTRACK_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logger builds the process logger from the configured level and format.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func (c *Config) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
