package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"gorm.io/gorm"
)

// Connection implements database.DBConnection on top of a *gorm.DB.
type Connection struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   dbconfig.DatabaseConfig
	name  string
}

// NewConnection wraps an open *gorm.DB.
func NewConnection(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*Connection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &Connection{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

// GormDB returns the *gorm.DB behind a connection created by this package.
func GormDB(conn database.DBConnection) (*gorm.DB, error) {
	c, ok := conn.(*Connection)
	if !ok {
		return nil, fmt.Errorf("connection '%s' (%T) is not a GORM connection", conn.Name(), conn)
	}
	return c.db, nil
}

// Open creates a connection to the named database that is not cached by any provider. The caller
// owns it and must close it.
func Open(cfg *config.Config, name string) (*Connection, error) {
	dbConfig, err := lookupDatabaseConfig(cfg, name)
	if err != nil {
		return nil, err
	}
	db, err := openGormDB(cfg, dbConfig)
	if err != nil {
		return nil, err
	}
	return NewConnection(db, dbConfig, name)
}

// Close closes the connection pool.
func (c *Connection) Close() error {
	logger.Infof("Closing database connection '%s'...", c.name)
	return c.sqlDB.Close()
}

// Type returns the database type.
func (c *Connection) Type() string {
	return c.cfg.Type
}

// Name returns the connection name.
func (c *Connection) Name() string {
	return c.name
}

// RefreshConnection pings the connection pool.
func (c *Connection) RefreshConnection(ctx context.Context) error {
	return c.sqlDB.PingContext(ctx)
}

// Config returns the connection settings.
func (c *Connection) Config() dbconfig.DatabaseConfig {
	return c.cfg
}

// GetSQLDB returns the underlying *sql.DB.
func (c *Connection) GetSQLDB() (*sql.DB, error) {
	return c.sqlDB, nil
}

var _ database.DBConnection = (*Connection)(nil)
