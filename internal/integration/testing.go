package integration

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	BrowserHost string
	BrowserPort int
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment.
// BIDI_E2E_PORT names the remote debugging port of a running browser.
func LoadConfig() *Config {
	cfg := &Config{
		BrowserHost: os.Getenv("BIDI_E2E_HOST"),
		TestTimeout: 60 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
	if cfg.BrowserHost == "" {
		cfg.BrowserHost = "localhost"
	}
	if p, err := strconv.Atoi(os.Getenv("BIDI_E2E_PORT")); err == nil {
		cfg.BrowserPort = p
	}
	return cfg
}

// SkipIfNoBrowser skips the test unless a browser endpoint is configured
func SkipIfNoBrowser(t *testing.T, cfg *Config) {
	t.Helper()
	if cfg.BrowserPort == 0 {
		t.Skip("Skipping browser integration test: BIDI_E2E_PORT not set")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
