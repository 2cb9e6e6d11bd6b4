// Package migration applies the versioned SQL schema of the ledger and run history databases with
// golang-migrate. It is the production alternative to infrastructure.auto_migrate.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

const migrationModule = "schema_migration"

//go:embed resource
var resources embed.FS

// Schema is a set of migrations with its own version table.
type Schema struct {
	// Dir is the directory below resource/<dialect>.
	Dir string
	// Table records the applied version of this schema.
	Table string
}

var (
	// LedgerSchema holds the owners, accounts and interest postings tables.
	LedgerSchema = Schema{Dir: "ledger", Table: "ledger_schema_migrations"}
	// HistorySchema holds the run history table.
	HistorySchema = Schema{Dir: "history", Table: "history_schema_migrations"}
)

// Up applies all pending migrations of schema to conn and closes conn, so conn must not be shared
// with other components.
func Up(ctx context.Context, conn database.DBConnection, schema Schema) error {
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		conn.Close()
		return exception.NewBatchError(migrationModule, "get underlying sql.DB", err, false)
	}

	source, err := iofs.New(resources, path.Join("resource", conn.Type(), schema.Dir))
	if err != nil {
		conn.Close()
		return exception.NewBatchErrorf(migrationModule, "no %s migrations for database type '%s'", schema.Dir, conn.Type(), err)
	}

	driver, err := databaseDriver(conn.Type(), sqlDB, schema.Table)
	if err != nil {
		source.Close()
		conn.Close()
		return exception.NewBatchErrorf(migrationModule, "create %s migration driver", conn.Type(), err)
	}

	m, err := migrate.NewWithInstance("iofs", source, conn.Type(), driver)
	if err != nil {
		driver.Close()
		return exception.NewBatchError(migrationModule, "create migrate instance", err, false)
	}
	defer m.Close()

	logger.Infof("Applying %s migrations on '%s' (%s, table %s).", schema.Dir, conn.Name(), conn.Type(), schema.Table)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return exception.NewBatchErrorf(migrationModule, "apply %s migrations on '%s'", schema.Dir, conn.Name(), err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return exception.NewBatchError(migrationModule, "read schema version", err, false)
	}
	if dirty {
		return exception.NewBatchError(migrationModule, fmt.Sprintf("%s schema on '%s' is dirty at version %d", schema.Dir, conn.Name(), version), nil, false)
	}
	logger.Infof("%s schema on '%s' is at version %d.", schema.Dir, conn.Name(), version)
	return nil
}

// databaseDriver wraps sqlDB in the golang-migrate driver of dbType.
func databaseDriver(dbType string, sqlDB *sql.DB, table string) (migratedb.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: table})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}
