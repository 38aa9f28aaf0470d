package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Connection.Host != "localhost" || cfg.Connection.Port != 9222 {
		t.Errorf("endpoint = %s:%d, want localhost:9222", cfg.Connection.Host, cfg.Connection.Port)
	}
	if cfg.Connection.Path != "session" {
		t.Errorf("Path = %q, want %q", cfg.Connection.Path, "session")
	}
	if cfg.Session.CommandTimeout != 10*time.Second {
		t.Errorf("CommandTimeout = %v, want 10s", cfg.Session.CommandTimeout)
	}
	if cfg.Connection.EventBuffer != 256 {
		t.Errorf("EventBuffer = %d, want 256", cfg.Connection.EventBuffer)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection.Port != 9222 {
		t.Errorf("expected defaults, got Port=%d", cfg.Connection.Port)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bidi.yaml")
	content := `
connection:
  host: "127.0.0.1"
  port: 4444
  dial_timeout: 3s
  ping_interval: 15s
  headers:
    X-Grid-Token: "plain"
session:
  command_timeout: 30s
  capabilities:
    acceptInsecureCerts: true
  rate_limit:
    per_second: 50
    burst: 10
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection.Host != "127.0.0.1" || cfg.Connection.Port != 4444 {
		t.Errorf("endpoint = %s:%d", cfg.Connection.Host, cfg.Connection.Port)
	}
	if cfg.Connection.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout = %v, want 3s", cfg.Connection.DialTimeout)
	}
	if cfg.Connection.PingInterval != 15*time.Second {
		t.Errorf("PingInterval = %v, want 15s", cfg.Connection.PingInterval)
	}
	if cfg.Connection.Path != "session" {
		t.Errorf("unset Path should keep default, got %q", cfg.Connection.Path)
	}
	if cfg.Session.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v, want 30s", cfg.Session.CommandTimeout)
	}
	if cfg.Session.Capabilities["acceptInsecureCerts"] != true {
		t.Errorf("Capabilities = %v", cfg.Session.Capabilities)
	}
	if cfg.Session.RateLimit.PerSecond != 50 || cfg.Session.RateLimit.Burst != 10 {
		t.Errorf("RateLimit = %+v", cfg.Session.RateLimit)
	}
	if cfg.Connection.Headers["X-Grid-Token"] != "plain" {
		t.Errorf("Headers = %v", cfg.Connection.Headers)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bidi.yaml")
	if err := os.WriteFile(path, []byte("connection: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bidi.yaml")
	if err := os.WriteFile(path, []byte("connection:\n  port: 70000\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bidi.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("err = %v, want insecure permissions", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BIDI_HOST", "browser.internal")
	t.Setenv("BIDI_PORT", "4444")
	t.Setenv("BIDI_COMMAND_TIMEOUT", "2s")
	t.Setenv("BIDI_PING_INTERVAL", "30s")
	t.Setenv("BIDI_RATE_LIMIT", "5")
	t.Setenv("BIDI_LOGGER_LEVEL", "debug")
	t.Setenv("BIDI_TRACER_ENABLED", "true")
	t.Setenv("BIDI_METRICS_ADDR", ":9100")
	t.Setenv("BIDI_HEADERS", "Authorization: Basic abc, X-Trace: 1")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Connection.Host != "browser.internal" || cfg.Connection.Port != 4444 {
		t.Errorf("endpoint = %s:%d", cfg.Connection.Host, cfg.Connection.Port)
	}
	if cfg.Session.CommandTimeout != 2*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.Session.CommandTimeout)
	}
	if cfg.Connection.PingInterval != 30*time.Second {
		t.Errorf("PingInterval = %v", cfg.Connection.PingInterval)
	}
	if cfg.Session.RateLimit.PerSecond != 5 {
		t.Errorf("RateLimit.PerSecond = %v", cfg.Session.RateLimit.PerSecond)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
	if cfg.Connection.Headers["Authorization"] != "Basic abc" || cfg.Connection.Headers["X-Trace"] != "1" {
		t.Errorf("Headers = %v", cfg.Connection.Headers)
	}
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("BIDI_PORT", "not-a-port")
	t.Setenv("BIDI_COMMAND_TIMEOUT", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	if cfg.Connection.Port != 9222 {
		t.Errorf("Port = %d, want default", cfg.Connection.Port)
	}
	if cfg.Session.CommandTimeout != 10*time.Second {
		t.Errorf("CommandTimeout = %v, want default", cfg.Session.CommandTimeout)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("Basic dXNlcjpwYXNz", "hunter2")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	got, err := DecryptValue(enc, "hunter2")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if got != "Basic dXNlcjpwYXNz" {
		t.Errorf("got %q", got)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	enc, err := EncryptValue("secret", "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptValue(enc, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestDecryptValueInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no separator", "abcdef"},
		{"bad salt", "zz:00"},
		{"bad ciphertext", "00:zz"},
		{"too short", "00112233445566778899aabbccddeeff:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecryptValue(tt.input, "key"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadWithSealedHeader(t *testing.T) {
	sealed, err := Seal("Bearer token-123", "passphrase")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "bidi.yaml")
	content := "connection:\n  headers:\n    Authorization: \"" + sealed + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BIDI_CONFIG_KEY", "passphrase")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Connection.Headers["Authorization"]; got != "Bearer token-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestLoadSealedHeaderWithoutKey(t *testing.T) {
	sealed, err := Seal("x", "passphrase")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "bidi.yaml")
	content := "connection:\n  headers:\n    Authorization: \"" + sealed + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BIDI_CONFIG_KEY", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error without BIDI_CONFIG_KEY")
	}
}

func TestValidatePermissions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		mode    os.FileMode
		wantErr bool
	}{
		{0600, false},
		{0644, false},
		{0664, true},
		{0666, true},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.mode.String())
		if err := os.WriteFile(path, nil, 0600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(path, tt.mode); err != nil {
			t.Fatal(err)
		}
		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("mode %o: err = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}
}
