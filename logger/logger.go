// Package logger provides structured logging with automatic credential redaction.
//
// It wraps Go's standard log/slog with convenience functions for AI service
// call logging and level-based verbosity control. All exported functions use
// the global DefaultLogger, which can be reconfigured at runtime.
package logger

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the global structured logger instance.
// It is safe for concurrent use and initialized at slog.LevelInfo by default.
var DefaultLogger *slog.Logger

// apiKeyPatterns match credential material that must never reach log output.
var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`key=[\w-]+`),
	regexp.MustCompile(`AIza[\w-]{35}`),
	regexp.MustCompile(`Bearer\s+\S+`),
}

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// Warn logs a warning message with structured attributes.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// RedactSensitiveData removes API keys and bearer tokens from a string
// before it is logged.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer") {
				return "Bearer [REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}

// APIRequest logs an outbound AI service request at debug level with
// automatic credential redaction. No-op when debug logging is disabled.
func APIRequest(provider, operation, method, url string) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	DefaultLogger.Debug("API request",
		"provider", provider,
		"operation", operation,
		"method", method,
		"url", RedactSensitiveData(url),
	)
}

// APIResponse logs an AI service response at debug level, or at error level
// when err is non-nil.
func APIResponse(provider, operation string, statusCode int, err error) {
	if err != nil {
		DefaultLogger.Error("API response error",
			"provider", provider,
			"operation", operation,
			"status", statusCode,
			"error", RedactSensitiveData(err.Error()),
		)
		return
	}
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	DefaultLogger.Debug("API response",
		"provider", provider,
		"operation", operation,
		"status", statusCode,
	)
}
