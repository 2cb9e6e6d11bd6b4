// Package postgres provides a GORM DBProvider implementation for PostgreSQL databases.
package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DBType is the database type handled by this package.
const DBType = "postgres"

// SQLSTATE codes that signal contention with another transaction.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
	gormadapter.RegisterErrorClassifier(DBType, ClassifyError)
}

// ConnectionString generates the DSN in the key/value format expected by gorm.io/driver/postgres.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

// ClassifyError maps serialization failures, deadlocks and lock timeouts reported by pgx.
func ClassifyError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case codeSerializationFailure:
		return exception.ErrOptimisticLockingFailure
	case codeDeadlockDetected:
		return exception.ErrDeadlock
	case codeLockNotAvailable:
		return exception.ErrLockAcquisitionTimeout
	}
	return nil
}

// NewProvider creates a new database.DBProvider for PostgreSQL.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
