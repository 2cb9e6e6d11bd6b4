// Package logger provides the leveled logging facade used throughout the ledger batch engine.
// It keeps a printf-style API on top of a zerolog logger so that call sites stay short while
// output remains structured and timestamped.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is a type representing the logging level.
type LogLevel int

const (
	// LevelDebug is the log level used for detailed debugging information.
	LevelDebug LogLevel = iota
	// LevelInfo is the log level used for general informational messages.
	LevelInfo
	// LevelWarn is the log level used for potential issues or warning messages.
	LevelWarn
	// LevelError is the log level used for error messages.
	LevelError
	// LevelFatal is the log level used for fatal error messages that cause application termination.
	LevelFatal
)

var (
	mu   sync.RWMutex
	base = newBase(os.Stderr)
)

func newBase(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

// SetOutput replaces the log destination. A console writer is used when pretty is true.
func SetOutput(w io.Writer, pretty bool) {
	mu.Lock()
	defer mu.Unlock()
	level := base.GetLevel()
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base = newBase(w).Level(level)
}

// SetLogLevel sets the global log level.
// Valid values are "DEBUG", "INFO", "WARN", "ERROR", "FATAL" and "SILENT" (case-insensitive).
// An unknown value falls back to INFO.
func SetLogLevel(level string) {
	var zl zerolog.Level
	switch strings.ToUpper(level) {
	case "TRACE", "DEBUG":
		zl = zerolog.DebugLevel
	case "INFO":
		zl = zerolog.InfoLevel
	case "WARN":
		zl = zerolog.WarnLevel
	case "ERROR":
		zl = zerolog.ErrorLevel
	case "FATAL":
		zl = zerolog.FatalLevel
	case "SILENT":
		zl = zerolog.Disabled
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level '%s' specified. Defaulting to INFO level.\n", level)
		zl = zerolog.InfoLevel
	}
	mu.Lock()
	base = base.Level(zl)
	mu.Unlock()
}

// GetLogLevel returns the active level.
func GetLogLevel() LogLevel {
	switch current().GetLevel() {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return LevelDebug
	case zerolog.InfoLevel:
		return LevelInfo
	case zerolog.WarnLevel:
		return LevelWarn
	case zerolog.ErrorLevel:
		return LevelError
	default:
		return LevelFatal
	}
}

// With returns a child logger carrying the given fields on every event.
func With(fields map[string]interface{}) zerolog.Logger {
	return current().With().Fields(fields).Logger()
}

// Debugf formats and outputs a DEBUG level log message.
func Debugf(format string, v ...interface{}) {
	current().Debug().Msgf(format, v...)
}

// Infof formats and outputs an INFO level log message.
func Infof(format string, v ...interface{}) {
	current().Info().Msgf(format, v...)
}

// Warnf formats and outputs a WARN level log message.
func Warnf(format string, v ...interface{}) {
	current().Warn().Msgf(format, v...)
}

// Errorf formats and outputs an ERROR level log message.
func Errorf(format string, v ...interface{}) {
	current().Error().Msgf(format, v...)
}

// Fatalf formats and outputs a FATAL level log message, then terminates the program.
func Fatalf(format string, v ...interface{}) {
	current().Fatal().Msgf(format, v...)
}
