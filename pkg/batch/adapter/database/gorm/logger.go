package gorm

import (
	"fmt"
	"strings"
	"time"

	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	gormlogger "gorm.io/gorm/logger"
)

// NewGormLogger creates a gorm logger writing through the application logger at the given level.
func NewGormLogger(level string) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch config.LogLevel(level) {
	case config.LogLevelError:
		gormLevel = gormlogger.Error
	case config.LogLevelWarn:
		gormLevel = gormlogger.Warn
	case config.LogLevelInfo, config.LogLevelDebug:
		gormLevel = gormlogger.Info
	default:
		gormLevel = gormlogger.Silent
	}

	return gormlogger.New(
		NewGormWriter(),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the application logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gormlogger.Writer. Statement traces go to DEBUG, everything else
// (slow query warnings, connection messages) to WARN.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatementTrace(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Warnf("[GORM] %s", msg)
}

func isStatementTrace(msg string) bool {
	if !strings.Contains(msg, "[") || strings.Contains(msg, "SLOW SQL") {
		return false
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(msg, verb) {
			return true
		}
	}
	return false
}
