// Package logger sets up the process-wide slog logger from LOG_LEVEL and LOG_FORMAT.
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	current  atomic.Pointer[slog.Logger]
	lazyInit sync.Once
)

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func build() *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h).With("service", "lead-allocation")
}

// Setup rebuilds the logger from the environment and makes it current.
// Output always goes to stderr.
func Setup() *slog.Logger {
	l := build()
	current.Store(l)
	return l
}

// L returns the current logger. The first call builds one if Setup never ran.
// Safe for concurrent use.
func L() *slog.Logger {
	lazyInit.Do(func() {
		current.CompareAndSwap(nil, build())
	})
	return current.Load()
}
