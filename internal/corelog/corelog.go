// Package corelog provides the level-filtered, child-context structured
// logger used across the core (component C2). It wraps log/slog rather
// than reaching for a third-party logging framework: the teacher's own
// hook and daemon code (internal/hooks, internal/daemon) is built on
// log/slog, and pulling in logrus or zap here would only be exercising a
// transitive dependency no first-party teacher code actually imports for
// this purpose.
package corelog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Config mirrors the "logging" section of spec §6.
type Config struct {
	MinLevel    string
	LogDir      string
	Console     bool
	File        bool
	MaxFiles    int
	MaxFileSize int64
	NoColors    bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MinLevel: "info",
		Console:  true,
		File:     false,
		MaxFiles: 5,
		MaxFileSize: 10 * 1024 * 1024,
	}
}

// Logger is a level-filtered, child-context logger with a health probe and
// a safe fallback to stderr if its configured sink cannot be opened.
type Logger struct {
	mu      sync.Mutex
	slog    *slog.Logger
	healthy bool
	closer  io.Closer
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a Logger from Config. Failure to open the configured log
// file never aborts startup: the logger falls back to an unbuffered
// stderr handler and marks itself unhealthy, matching the teacher's
// posture that logging setup must never crash the process.
func New(cfg Config) *Logger {
	level := parseLevel(cfg.MinLevel)
	opts := &slog.HandlerOptions{Level: level}

	var writers []io.Writer
	healthy := true
	var closer io.Closer

	if cfg.Console || !cfg.File {
		writers = append(writers, os.Stderr)
	}
	if cfg.File && cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			healthy = false
		} else {
			f, err := rotatingFile(cfg.LogDir, cfg.MaxFiles)
			if err != nil {
				healthy = false
			} else {
				writers = append(writers, f)
				closer = f
			}
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), opts)
	return &Logger{slog: slog.New(handler), healthy: healthy, closer: closer}
}

// rotatingFile opens (or rotates) the numbered log file set under dir,
// keeping at most maxFiles files, grounded on the teacher's log rotation
// convention of numbered sibling files rather than a timestamp suffix.
func rotatingFile(dir string, maxFiles int) (io.WriteCloser, error) {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	// Shift existing numbered files up by one, dropping the oldest.
	for i := maxFiles - 1; i >= 1; i-- {
		src := filepath.Join(dir, fmt.Sprintf("core.%d.log", i))
		dst := filepath.Join(dir, fmt.Sprintf("core.%d.log", i+1))
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, dst)
		}
	}
	current := filepath.Join(dir, "core.log")
	if _, err := os.Stat(current); err == nil {
		_ = os.Rename(current, filepath.Join(dir, "core.1.log"))
	}
	return os.OpenFile(current, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// With returns a child logger carrying the given structured attributes
// (e.g. a request/trace id) for the remainder of an operation's lifetime.
func (l *Logger) With(args ...any) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{slog: l.slog.With(args...), healthy: l.healthy, closer: l.closer}
}

// Healthy reports whether the logger's configured sink opened successfully.
func (l *Logger) Healthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.healthy
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Close releases any open file handle. Safe to call on a console-only logger.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// Nop returns a Logger that discards everything, for use in tests.
func Nop() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil)), healthy: true}
}
