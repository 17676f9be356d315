package logger

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// New builds the process-wide structured logger. Output is JSON on stdout;
// local and dev environments log at debug level.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// ShutdownFlush is the shutdown hook for a buffered handler. The JSON
// handler writes through, so today there is nothing to flush.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
