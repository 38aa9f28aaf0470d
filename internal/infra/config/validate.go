package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateConnection(cfg, ve)
	validateSession(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateConnection(cfg *Config, ve *ValidationError) {
	c := cfg.Connection
	if c.Host == "" {
		ve.Add("connection.host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		ve.Add("connection.port must be between 1 and 65535, got %d", c.Port)
	}
	if strings.ContainsAny(c.Path, " ?#") {
		ve.Add("connection.path %q must be a plain path", c.Path)
	}
	if c.DialTimeout <= 0 {
		ve.Add("connection.dial_timeout must be > 0")
	}
	if c.ReadLimit <= 0 {
		ve.Add("connection.read_limit must be > 0")
	}
	if c.PingInterval < 0 {
		ve.Add("connection.ping_interval must be >= 0")
	}
	if c.EventBuffer <= 0 {
		ve.Add("connection.event_buffer must be > 0")
	}
	for name := range c.Headers {
		if name == "" || strings.ContainsAny(name, " :\r\n") {
			ve.Add("connection.headers: invalid header name %q", name)
		}
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	s := cfg.Session
	if s.CommandTimeout <= 0 {
		ve.Add("session.command_timeout must be > 0")
	}
	if s.RateLimit.PerSecond < 0 {
		ve.Add("session.rate_limit.per_second must be >= 0")
	}
	if s.RateLimit.PerSecond > 0 && s.RateLimit.Burst <= 0 {
		ve.Add("session.rate_limit.burst must be > 0 when per_second is set")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if level := cfg.Logger.Level; level != "" && !strings.EqualFold(level, "warning") {
		var l slog.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			ve.Add("logger.level %q is not one of debug, info, warn, error", level)
		}
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is not one of text, json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not one of stdout, noop", cfg.Tracer.Exporter)
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q: %v", cfg.Metrics.Addr, err)
	}
}
