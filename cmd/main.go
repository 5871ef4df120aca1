package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// prepareLogger sets up the global slog logger for the given level (debug,
// info, warn, error). Output is JSON on os.Stderr: stdout carries dumps and
// the grading console. Unknown levels fall back to info.
func prepareLogger(level string) {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// Any error exits with code 1. So does an incomplete status.
func main() {
	appCtx, appCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(appCtx)
	appCancel()

	if err != nil {
		if !errors.Is(err, errIncomplete) {
			slog.Error("Command failed", "error", err)
		}
		os.Exit(1)
	}
}
