package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// Resolver dispatches a connection name to the provider registered for its configured type.
type Resolver struct {
	cfg       *config.Config
	providers map[string]StorageProvider
}

// NewResolver creates a Resolver over the given providers, keyed by their Type.
func NewResolver(cfg *config.Config, providers ...StorageProvider) *Resolver {
	byType := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &Resolver{cfg: cfg, providers: byType}
}

// ResolveStorageConnection returns the connection configured under ledger.storage.<name>.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := storageConfig.Lookup(r.cfg.Ledger.StorageConfigs, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", storageCfg.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("get storage connection '%s' from provider '%s': %w", name, storageCfg.Type, err)
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ StorageConnectionResolver = (*Resolver)(nil)

// ResolverParams collects the storage providers contributed by the storage type packages.
type ResolverParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Providers []StorageProvider `group:"storage_providers"`
}

// NewResolverProvider creates the Resolver and closes its connections on shutdown.
func NewResolverProvider(p ResolverParams) *Resolver {
	r := NewResolver(p.Config, p.Providers...)
	p.Lifecycle.Append(fx.StopHook(func() error {
		logger.Debugf("Closing storage connections.")
		return r.CloseAll()
	}))
	return r
}

// Module provides the Resolver as StorageConnectionResolver. Storage types are added by their own
// modules (e.g., local.Module).
var Module = fx.Options(
	fx.Provide(NewResolverProvider),
	fx.Provide(func(r *Resolver) StorageConnectionResolver { return r }),
)
