package gorm

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver is the GORM implementation of database.DBConnectionResolver.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider // keyed by database type
	cfg         *config.Config
}

// ResolverParams are the Fx dependencies of the resolver.
type ResolverParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}

// NewGormDBConnectionResolver creates a new GormDBConnectionResolver. Every provider's connections
// are closed when the application stops.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	r := NewResolver(p.Cfg, p.DBProviders...)
	p.Lifecycle.Append(fx.StopHook(r.CloseAll))
	return r
}

// NewResolver creates a resolver over the given providers.
func NewResolver(cfg *config.Config, providers ...database.DBProvider) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider)
	for _, provider := range providers {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{
		dbProviders: providerMap,
		cfg:         cfg,
	}
}

// ResolveDBConnection resolves the named connection, reconnecting if it no longer answers a ping.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	dbConfig, err := lookupDatabaseConfig(r.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: %w", err)
	}

	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: DBProvider for type '%s' not found for connection '%s'", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: Failed to get connection '%s': %w", name, err)
	}

	if pingErr := conn.RefreshConnection(ctx); pingErr != nil {
		logger.Warnf("DBConnectionResolver: Connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		reconnectedConn, reconnectErr := provider.ForceReconnect(name)
		if reconnectErr != nil {
			return nil, fmt.Errorf("DBConnectionResolver: Failed to reconnect connection '%s': %w", name, reconnectErr)
		}
		logger.Infof("DBConnectionResolver: Successfully reconnected connection '%s'.", name)
		return reconnectedConn, nil
	}

	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for dbType, provider := range r.dbProviders {
		if err := provider.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s connections: %w", dbType, err))
		}
	}
	return result.ErrorOrNil()
}

var _ database.DBConnectionResolver = (*GormDBConnectionResolver)(nil)
