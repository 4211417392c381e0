// Package log provides categorized structured logging for vibe.
//
// All packages log through the package-level functions with a Category as the
// first argument so output can be filtered by subsystem:
//
//	log.Debug(log.CatStore, "Saved session", "id", s.ID)
//	log.ErrorErr(log.CatDB, "Failed to open database", err, "path", path)
//
// The default logger writes colored console output to stderr. Stdout is never
// used because the MCP server speaks its protocol over stdout.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Category identifies the subsystem emitting a log record.
type Category string

// Log categories.
const (
	CatConfig   Category = "config"
	CatStore    Category = "store"
	CatDB       Category = "db"
	CatSession  Category = "session"
	CatMonitor  Category = "monitor"
	CatWorkflow Category = "workflow"
	CatMCP      Category = "mcp"
	CatHTTP     Category = "http"
	CatTrace    Category = "trace"
	CatRuntime  Category = "runtime"
)

// Options configures the process-wide logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File, when set, receives JSON records instead of the console.
	File string
	// Writer overrides the console destination (tests).
	Writer io.Writer
}

var (
	mu     sync.RWMutex
	logger = newConsoleLogger(os.Stderr, slog.LevelInfo)
)

// Init replaces the process-wide logger. It returns a cleanup function that
// closes any log file that was opened.
func Init(opts Options) (func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return func() {}, err
	}

	var next *slog.Logger
	var closer io.Closer
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
			return func() {}, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path comes from user config
		if err != nil {
			return func() {}, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = f
		next = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	case opts.Writer != nil:
		next = newConsoleLogger(opts.Writer, level)
	default:
		next = newConsoleLogger(os.Stderr, level)
	}

	mu.Lock()
	logger = next
	mu.Unlock()

	return func() {
		if closer != nil {
			_ = closer.Close()
		}
	}, nil
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func newConsoleLogger(w io.Writer, level slog.Level) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
	}))
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func emit(level slog.Level, cat Category, msg string, kv []any) {
	l := current()
	args := make([]any, 0, len(kv)+2)
	args = append(args, "cat", string(cat))
	args = append(args, kv...)
	l.Log(context.Background(), level, msg, args...)
}

// Debug logs at debug level.
func Debug(cat Category, msg string, kv ...any) { emit(slog.LevelDebug, cat, msg, kv) }

// Info logs at info level.
func Info(cat Category, msg string, kv ...any) { emit(slog.LevelInfo, cat, msg, kv) }

// Warn logs at warn level.
func Warn(cat Category, msg string, kv ...any) { emit(slog.LevelWarn, cat, msg, kv) }

// Error logs at error level.
func Error(cat Category, msg string, kv ...any) { emit(slog.LevelError, cat, msg, kv) }

// ErrorErr logs at error level with err attached under the "error" key.
func ErrorErr(cat Category, msg string, err error, kv ...any) {
	emit(slog.LevelError, cat, msg, append([]any{"error", err}, kv...))
}

// SafeGo runs fn on a new goroutine and logs instead of crashing if it panics.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				Error(CatRuntime, "Recovered from panic in goroutine",
					"goroutine", name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
