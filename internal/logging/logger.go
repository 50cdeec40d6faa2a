// Package logging provides structured logging with file output support.
// It uses environment variables for configuration and supports file cleanup.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps a level name to a log level. Unknown names yield info.
func ParseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	lg.SetLevel(ParseLevel(os.Getenv("SYMMAP_LOG_LEVEL")))

	prefix := os.Getenv("SYMMAP_LOG_PREFIX")
	if prefix == "" {
		prefix = "symmap "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != io.Writer(os.Stderr) {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// SYMMAP_LOG_LEVEL: debug, info, warn, error (default: info)
// SYMMAP_LOG_PREFIX: prefix for log messages (default: "symmap ")
// SYMMAP_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)

	if os.Getenv("SYMMAP_LOG_TO_FILE") == "1" {
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("symmap-%s-debug.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
		}
		// If file creation fails, fall back to stderr
	}

	return NewLoggerWithWriter(output)
}

// Discard returns a logger that drops everything. Used as the default for
// library types and in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv("SYMMAP_LOG_LEVEL") == "debug"
}
