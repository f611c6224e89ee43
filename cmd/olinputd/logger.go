package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents the available logging levels
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// parseLogLevel converts a string to a LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// setupLogger creates a text logger on stdout.
func setupLogger(level LogLevel) *slog.Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(w io.Writer, level LogLevel) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return slog.New(handler).With("app", "olinputd")
}

// discardLogger is used by tests and by components built without a logger.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
