package gorm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"gorm.io/gorm"
)

// DialectorFactory generates a gorm.Dialector from a dbconfig.DatabaseConfig.
type DialectorFactory func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error)

// ErrorClassifier maps a driver error to the exception sentinel it represents
// (e.g., exception.ErrDeadlock). It returns nil for errors it does not recognise.
type ErrorClassifier func(err error) error

var (
	dialectorRegistry  = make(map[string]DialectorFactory)
	classifierRegistry = make(map[string]ErrorClassifier)
	registryMutex      sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// RegisterErrorClassifier registers the driver error classifier of a database type.
func RegisterErrorClassifier(dbType string, classifier ErrorClassifier) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	classifierRegistry[dbType] = classifier
}

// ClassifyDBError joins err with the exception sentinel the driver error of dbType stands for, so that
// exception.Classify recognises lock contention. Errors no classifier recognises are returned unchanged.
func ClassifyDBError(dbType string, err error) error {
	if err == nil {
		return nil
	}
	registryMutex.RLock()
	classifier, ok := classifierRegistry[dbType]
	registryMutex.RUnlock()
	if !ok {
		return err
	}
	if sentinel := classifier(err); sentinel != nil && !errors.Is(err, sentinel) {
		return errors.Join(sentinel, err)
	}
	return err
}

// DecodeDatabaseConfig decodes one raw entry of ledger.database into a DatabaseConfig.
func DecodeDatabaseConfig(raw interface{}) (dbconfig.DatabaseConfig, error) {
	var dbConfig dbconfig.DatabaseConfig
	err := configbinder.Bind(raw, &dbConfig)
	return dbConfig, err
}

// lookupDatabaseConfig finds and decodes the named connection settings.
func lookupDatabaseConfig(cfg *config.Config, name string) (dbconfig.DatabaseConfig, error) {
	rawConfig, ok := cfg.Ledger.AdapterConfigs[name]
	if !ok {
		return dbconfig.DatabaseConfig{}, fmt.Errorf("database configuration '%s' not found in ledger.database", name)
	}
	dbConfig, err := DecodeDatabaseConfig(rawConfig)
	if err != nil {
		return dbconfig.DatabaseConfig{}, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	return dbConfig, nil
}

// BaseProvider provides common functionality for DBProvider implementations.
type BaseProvider struct {
	cfg    *config.Config
	dbType string
	// Map to hold connections managed by this provider (name -> DBConnection)
	connections map[string]database.DBConnection
	mu          sync.RWMutex
}

// NewBaseProvider creates a new BaseProvider.
func NewBaseProvider(cfg *config.Config, dbType string) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		dbType:      dbType,
		connections: make(map[string]database.DBConnection),
	}
}

// Type returns the database type.
func (p *BaseProvider) Type() string {
	return p.dbType
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *BaseProvider) GetConnection(name string) (database.DBConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()

	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double check (DCL)
	conn, ok = p.connections[name]
	if ok {
		return conn, nil
	}

	return p.createAndStoreConnection(name)
}

// createAndStoreConnection establishes a new connection and stores it in the map.
func (p *BaseProvider) createAndStoreConnection(name string) (database.DBConnection, error) {
	dbConfig, err := lookupDatabaseConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if dbConfig.Type != p.dbType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for connection '%s'", p.dbType, dbConfig.Type, name)
	}

	gormDB, err := openGormDB(p.cfg, dbConfig)
	if err != nil {
		return nil, err
	}

	conn, err := NewConnection(gormDB, dbConfig, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established new DB connection: %s (%s)", name, p.dbType)

	return conn, nil
}

// ForceReconnect closes and reopens a connection.
func (p *BaseProvider) ForceReconnect(name string) (database.DBConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existingConn, ok := p.connections[name]; ok {
		if err := existingConn.Close(); err != nil {
			logger.Warnf("Failed to close existing connection '%s' before reconnect: %v", name, err)
		}
	}

	conn, err := p.createAndStoreConnection(name)
	if err != nil {
		return nil, err
	}

	logger.Infof("Re-established DB connection: %s (%s)", name, p.dbType)

	return conn, nil
}

// openGormDB establishes a GORM connection pool based on DatabaseConfig.
func openGormDB(appCfg *config.Config, dbConfig dbconfig.DatabaseConfig) (*gorm.DB, error) {
	dialectorFactory, err := GetDialectorFactory(dbConfig.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to get dialector factory for %s: %w", dbConfig.Type, err)
	}
	dialector, err := dialectorFactory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	// SQL statements are only traced when the application logs at DEBUG.
	gormLogLevel := config.LogLevelWarn
	if config.LogLevel(appCfg.Ledger.System.Logging.Level) == config.LogLevelDebug {
		gormLogLevel = config.LogLevelInfo
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(string(gormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if dbConfig.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	}
	if dbConfig.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	}
	if dbConfig.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return db, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}
