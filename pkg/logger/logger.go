package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output formats accepted by NewWithFormat.
const (
	FormatJSON = "json"
	FormatText = "text"
)

var (
	// Default is the logger used by packages that are not handed one explicitly.
	// It writes JSON at info level to stderr so stdout stays free for command output.
	Default *slog.Logger
)

func init() {
	Default = New("info", os.Stderr)
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New creates a JSON logger with the specified level and output
func New(level string, output io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// NewText creates a text logger (useful for interactive runs)
func NewText(level string, output io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// NewWithFormat creates a logger in the given format ("json" or "text").
func NewWithFormat(format, level string, output io.Writer) (*slog.Logger, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return New(level, output), nil
	case FormatText:
		return NewText(level, output), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// SetDefault sets the default logger
func SetDefault(logger *slog.Logger) {
	Default = logger
	slog.SetDefault(logger)
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return Default.With("component", name)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Default.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Default.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Default.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Default.Error(msg, args...)
}

// With returns a logger with additional attributes
func With(args ...any) *slog.Logger {
	return Default.With(args...)
}
