// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DBType is the database type handled by this package.
const DBType = "sqlite"

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
	gormadapter.RegisterErrorClassifier(DBType, ClassifyError)
}

// ConnectionString generates the DSN for SQLite connections. The GORM SQLite dialector expects the
// file path (or a file: URI) directly.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database
}

// ClassifyError maps SQLITE_BUSY and SQLITE_LOCKED to exception.ErrLockAcquisitionTimeout.
func ClassifyError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return exception.ErrLockAcquisitionTimeout
	}
	return nil
}

// NewProvider creates a new database.DBProvider for SQLite.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
