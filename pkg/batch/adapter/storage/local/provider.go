package local

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// LocalProvider creates and caches local storage connections from ledger.storage.
type LocalProvider struct {
	cfg         *config.Config
	connections map[string]storage.StorageConnection
	mu          sync.RWMutex
}

// NewLocalProvider creates a new LocalProvider.
func NewLocalProvider(cfg *config.Config) *LocalProvider {
	return &LocalProvider{
		cfg:         cfg,
		connections: make(map[string]storage.StorageConnection),
	}
}

// GetConnection returns the cached connection or creates it from configuration.
func (p *LocalProvider) GetConnection(name string) (storage.StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	storageCfg, err := storageConfig.Lookup(p.cfg.Ledger.StorageConfigs, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != ProviderType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, ProviderType, storageCfg.Type)
	}
	conn, err = NewLocalAdapter(storageCfg, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Debugf("Created local storage connection '%s' at %s.", name, storageCfg.BaseDir)
	return conn, nil
}

// CloseAll closes and forgets every connection.
func (p *LocalProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close local storage '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

func (p *LocalProvider) Type() string { return ProviderType }

// ForceReconnect drops the cached connection and creates a new one.
func (p *LocalProvider) ForceReconnect(name string) (storage.StorageConnection, error) {
	p.mu.Lock()
	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close local storage '%s' during reconnect: %v", name, err)
		}
		delete(p.connections, name)
	}
	p.mu.Unlock()
	return p.GetConnection(name)
}

var _ storage.StorageProvider = (*LocalProvider)(nil)
