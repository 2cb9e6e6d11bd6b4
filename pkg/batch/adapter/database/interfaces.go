// Package database declares the connection abstractions shared by the database adapters.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
)

// DBConnection represents an abstraction of a named database connection.
type DBConnection interface {
	// Type returns the database type (e.g., "postgres", "mysql", "sqlite").
	Type() string
	// Name returns the name of the connection in the configuration.
	Name() string
	// Close closes the connection pool.
	Close() error
	// RefreshConnection pings the connection pool to check that it is still usable.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a database connection instance by name.
type DBConnectionResolver interface {
	// ResolveDBConnection resolves a database connection instance by name.
	// It is responsible for ensuring that the returned connection is valid and re-established if necessary.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider is responsible for providing database connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
	// ForceReconnect forces the closure and re-establishment of an existing connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is an Fx tag used to group all DBProvider implementations.
const DBProviderGroup = `group:"db_providers"`
