// twok/utils/env.go
package utils

import (
	"log/slog"
	"os"
	"strings"
)

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// LogLevel maps TWOK_LOG_LEVEL style strings onto slog levels. The logger is
// built before the rest of the configuration, so it reads the env directly.
func LogLevel(value string) slog.Level {
	switch strings.ToLower(value) {
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
