package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Osu       OsuConfig       `yaml:"osu"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Search    SearchConfig    `yaml:"search"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DatabaseConfig selects the SQL driver and connection string.
// Driver is "sqlite" (DSN is a file path) or "pgx" (DSN is a postgres URL).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// OsuConfig configures the osu! API v2 client used by the importer.
type OsuConfig struct {
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	BaseURL           string `yaml:"base_url"`
	TokenURL          string `yaml:"token_url"`
	Mode              string `yaml:"mode"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MaxRequests       int    `yaml:"max_requests"`
}

// ScheduleConfig configures the import interval used by the daemon.
type ScheduleConfig struct {
	ImportInterval string `yaml:"import_interval"`
}

// ParseImportInterval returns the import interval as time.Duration.
func (s ScheduleConfig) ParseImportInterval() time.Duration {
	d, err := time.ParseDuration(s.ImportInterval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// SearchConfig bounds the page size of the search endpoint.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Mode  string `yaml:"mode"` // "development" or "production"
	Level string `yaml:"level"`
}

// TelemetryConfig toggles OTLP trace export. The exporter endpoint is read
// from the standard OTEL_EXPORTER_OTLP_* variables.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./beatmapdex.db"},
		Osu: OsuConfig{
			BaseURL:           "https://osu.ppy.sh/api/v2",
			TokenURL:          "https://osu.ppy.sh/oauth/token",
			Mode:              "osu",
			RequestsPerMinute: 120,
			MaxRequests:       1000,
		},
		Schedule:  ScheduleConfig{ImportInterval: "6h"},
		Search:    SearchConfig{DefaultLimit: 20, MaxLimit: 100},
		Server:    ServerConfig{Port: 8080},
		Log:       LogConfig{Mode: "production", Level: "info"},
		Telemetry: TelemetryConfig{ServiceName: "beatmapdex"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BEATMAPDEX_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("BEATMAPDEX_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("OSU_CLIENT_ID"); v != "" {
		cfg.Osu.ClientID = v
	}
	if v := os.Getenv("OSU_CLIENT_SECRET"); v != "" {
		cfg.Osu.ClientSecret = v
	}
	if v := os.Getenv("BEATMAPDEX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BEATMAPDEX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
	}
}
