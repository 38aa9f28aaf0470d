package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"webdriver-bidi/internal/infra/config"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggerConfig{Level: "info", Format: "json"}, &buf)

	log.Info("transport connected", "url", "ws://localhost:9222/session")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v, output: %s", err, buf.String())
	}
	if entry["msg"] != "transport connected" {
		t.Errorf("msg = %q", entry["msg"])
	}
	if entry["url"] != "ws://localhost:9222/session" {
		t.Errorf("url = %q", entry["url"])
	}
	if _, ok := entry["source"]; ok {
		t.Error("source should only be recorded at debug level")
	}
}

func TestNewWithWriterLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggerConfig{Level: "warn", Format: "text"}, &buf)

	log.Debug("orphaned command outcome", "id", 1)
	log.Info("connection closed")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}
	log.Warn("dropped inbound frame")
	if !strings.Contains(buf.String(), "dropped inbound frame") {
		t.Errorf("warn line missing: %q", buf.String())
	}
}

func TestDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(config.LoggerConfig{Level: "debug", Format: "json"}, &buf)
	log.Debug("x")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if _, ok := entry["source"]; !ok {
		t.Error("expected source at debug level")
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard should not enable any level")
	}
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := levelOf(tt.input); got != tt.want {
			t.Errorf("levelOf(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewSinkStandardStreams(t *testing.T) {
	tests := []struct {
		target string
		want   io.Writer
	}{
		{"stdout", os.Stdout},
		{"STDERR", os.Stderr},
		{"", os.Stderr},
		{"discard", io.Discard},
	}
	for _, tt := range tests {
		s, err := newSink(tt.target)
		if err != nil {
			t.Fatalf("newSink(%q): %v", tt.target, err)
		}
		if s.w != tt.want {
			t.Errorf("newSink(%q) picked the wrong writer", tt.target)
		}
		if err := s.close(); err != nil {
			t.Errorf("closing %q: %v", tt.target, err)
		}
	}
}

func TestNewFileOutputCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "bidi.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("session ready", "session", "abc")
	if err := closer(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "session=abc") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewBadFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, _, err := New(config.LoggerConfig{Output: filepath.Join(blocker, "x.log")})
	if err == nil {
		t.Fatal("expected error when the log directory is a file")
	}
}
