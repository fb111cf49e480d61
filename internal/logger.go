package internal

import (
	"log/slog"
	"os"
)

// GetLoggerFromString builds the process logger from the LOG_LEVEL
// variable value.
func GetLoggerFromString(level string) *slog.Logger {
	return GetLoggerFromLevel(ParseLogLevel(level))
}

func GetLoggerFromLevel(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
