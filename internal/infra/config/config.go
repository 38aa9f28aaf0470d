package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag or BIDI_CONFIG
// variable names one.
const DefaultPath = "bidi.yaml"

// Config is the top-level client configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ConnectionConfig describes how to reach the remote end.
type ConnectionConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Path         string        `yaml:"path"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`    // bytes per inbound message
	PingInterval time.Duration `yaml:"ping_interval"` // 0 disables keepalive
	EventBuffer  int           `yaml:"event_buffer"`
	// Headers are sent with the upgrade request. Values may be sealed with
	// EncryptValue and stored as "enc:...".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// SessionConfig holds command-level settings.
type SessionConfig struct {
	CommandTimeout time.Duration   `yaml:"command_timeout"`
	Capabilities   map[string]any  `yaml:"capabilities,omitempty"` // alwaysMatch
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles outgoing commands. PerSecond 0 disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig controls the Prometheus endpoint served by bidictl.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Defaults returns a config that connects to a local browser on 9222.
func Defaults() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Host:        "localhost",
			Port:        9222,
			Path:        "session",
			DialTimeout: 10 * time.Second,
			ReadLimit:   32 << 20,
			EventBuffer: 256,
		},
		Session: SessionConfig{
			CommandTimeout: 10 * time.Second,
			RateLimit:      RateLimitConfig{Burst: 1},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and unseals
// encrypted header values. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := unsealHeaders(cfg, os.Getenv("BIDI_CONFIG_KEY")); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps BIDI_* env vars to config fields. Unparseable
// values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIDI_HOST"); v != "" {
		cfg.Connection.Host = v
	}
	if v := os.Getenv("BIDI_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Connection.Port = n
		}
	}
	if v := os.Getenv("BIDI_PATH"); v != "" {
		cfg.Connection.Path = v
	}
	if v := os.Getenv("BIDI_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Connection.DialTimeout = d
		}
	}
	if v := os.Getenv("BIDI_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Connection.PingInterval = d
		}
	}
	if v := os.Getenv("BIDI_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.CommandTimeout = d
		}
	}
	if v := os.Getenv("BIDI_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Session.RateLimit.PerSecond = f
		}
	}
	if v := os.Getenv("BIDI_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BIDI_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("BIDI_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BIDI_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("BIDI_METRICS_ENABLED"); v == "true" {
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("BIDI_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	// BIDI_HEADERS="Name: value, Other: value"
	if v := os.Getenv("BIDI_HEADERS"); v != "" {
		for _, pair := range splitAndTrim(v, ",") {
			name, value, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			if cfg.Connection.Headers == nil {
				cfg.Connection.Headers = make(map[string]string)
			}
			cfg.Connection.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions checks the config file is not writable by others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
