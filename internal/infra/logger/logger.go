// Package logger builds the slog logger shared by the client components.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"webdriver-bidi/internal/infra/config"
)

// New creates a configured *slog.Logger writing to cfg.Output.
// The returned closer should be deferred to close a log file.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	sink, err := newSink(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return NewWithWriter(cfg, sink.w), sink.close, nil
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
// Debug level also records the source position.
func NewWithWriter(cfg config.LoggerConfig, w io.Writer) *slog.Logger {
	level := levelOf(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// levelOf reads a level name in slog's own syntax ("debug", "WARN",
// "info+2"), plus the "warning" spelling. Anything else is info.
func levelOf(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		name = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

type sink struct {
	w     io.Writer
	close func() error
}

// newSink resolves an output target: "stdout", "stderr" (or empty),
// "discard", or a file path whose directory is created on demand.
func newSink(target string) (sink, error) {
	keep := func() error { return nil }

	switch strings.ToLower(target) {
	case "", "stderr":
		return sink{os.Stderr, keep}, nil
	case "stdout":
		return sink{os.Stdout, keep}, nil
	case "discard":
		return sink{io.Discard, keep}, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return sink{}, err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return sink{}, err
	}
	return sink{f, f.Close}, nil
}
