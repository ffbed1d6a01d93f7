package logging

import (
	"context"
	"log/slog"
)

// EnableTrace enables trace logs. Off by default to reduce noise.
var EnableTrace = false

// LevelTrace sits below DEBUG so trace output can be filtered separately.
const LevelTrace = slog.LevelDebug - 4

// Trace logs a message at LevelTrace, but only if EnableTrace is true.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Log(context.Background(), LevelTrace, msg, args...)
	}
}

// TraceDefault logs to the default logger if EnableTrace is true.
func TraceDefault(msg string, args ...any) {
	Trace(slog.Default(), msg, args...)
}
