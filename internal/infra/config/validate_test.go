package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty host", func(c *Config) { c.Connection.Host = "" }, "connection.host"},
		{"port zero", func(c *Config) { c.Connection.Port = 0 }, "connection.port"},
		{"port too large", func(c *Config) { c.Connection.Port = 65536 }, "connection.port"},
		{"path with query", func(c *Config) { c.Connection.Path = "session?x=1" }, "connection.path"},
		{"dial timeout", func(c *Config) { c.Connection.DialTimeout = 0 }, "connection.dial_timeout"},
		{"read limit", func(c *Config) { c.Connection.ReadLimit = -1 }, "connection.read_limit"},
		{"negative ping", func(c *Config) { c.Connection.PingInterval = -time.Second }, "connection.ping_interval"},
		{"event buffer", func(c *Config) { c.Connection.EventBuffer = 0 }, "connection.event_buffer"},
		{"header name", func(c *Config) { c.Connection.Headers = map[string]string{"Bad Name": "x"} }, "connection.headers"},
		{"command timeout", func(c *Config) { c.Session.CommandTimeout = 0 }, "session.command_timeout"},
		{"negative rate", func(c *Config) { c.Session.RateLimit.PerSecond = -1 }, "session.rate_limit.per_second"},
		{"rate without burst", func(c *Config) {
			c.Session.RateLimit.PerSecond = 10
			c.Session.RateLimit.Burst = 0
		}, "session.rate_limit.burst"},
		{"logger level", func(c *Config) { c.Logger.Level = "verbose" }, "logger.level"},
		{"logger format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"tracer exporter", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.Exporter = "jaeger"
		}, "tracer.exporter"},
		{"metrics addr", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = "no-port"
		}, "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Connection.Host = ""
	cfg.Session.CommandTimeout = 0
	cfg.Logger.Format = "xml"

	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateDisabledSectionsSkipped(t *testing.T) {
	cfg := Defaults()
	cfg.Tracer.Exporter = "jaeger"
	cfg.Metrics.Addr = "nonsense"
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled tracer/metrics should not be validated: %v", err)
	}
}

func TestValidateLoggerLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warning", "warn", "error", "info+2", "debug-4"} {
		cfg := Defaults()
		cfg.Logger.Level = level
		if err := Validate(cfg); err != nil {
			t.Errorf("level %q rejected: %v", level, err)
		}
	}
}
