package app

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger builds the relay's process-wide JSON logger and installs it as
// the slog default, so library code that logs through slog lands in the same
// stream as the relay's own events.
func NewLogger(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	})

	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

// parseLogLevel maps a CHAT_LOG_LEVEL value to a slog level. Unknown values
// fall back to info rather than failing startup.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
