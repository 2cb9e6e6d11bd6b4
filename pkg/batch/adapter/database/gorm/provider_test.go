package gorm_test

import (
	"context"
	"errors"
	"testing"

	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDatabaseConfigUsesYAMLKeys(t *testing.T) {
	cfg, err := gormadapter.DecodeDatabaseConfig(map[string]interface{}{
		"type":     "postgres",
		"host":     "db.internal",
		"port":     "5432",
		"database": "ledger",
		"pool": map[string]interface{}{
			"max_open_conns":            8,
			"conn_max_lifetime_minutes": 30,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 8, cfg.Pool.MaxOpenConns)
	assert.Equal(t, 30, cfg.Pool.ConnMaxLifetimeMinutes)
}

func newSQLiteConfig(name string) *config.Config {
	cfg := config.NewConfig()
	cfg.Ledger.AdapterConfigs = map[string]interface{}{
		"ledger": map[string]interface{}{
			"type":     "sqlite",
			"database": "file:" + name + "?mode=memory&cache=shared",
		},
		"warehouse": map[string]interface{}{
			"type": "oracle",
		},
	}
	return cfg
}

func TestResolverReturnsCachedConnection(t *testing.T) {
	cfg := newSQLiteConfig("resolver_cached")
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { resolver.CloseAll() })

	first, err := resolver.ResolveDBConnection(context.Background(), "ledger")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", first.Type())
	assert.Equal(t, "ledger", first.Name())

	second, err := resolver.ResolveDBConnection(context.Background(), "ledger")
	require.NoError(t, err)
	assert.Same(t, first, second)

	db, err := gormadapter.GormDB(first)
	require.NoError(t, err)
	require.NoError(t, gormadapter.MigrateLedger(db))
}

func TestResolverReconnectsClosedConnection(t *testing.T) {
	cfg := newSQLiteConfig("resolver_reconnect")
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { resolver.CloseAll() })

	first, err := resolver.ResolveDBConnection(context.Background(), "ledger")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := resolver.ResolveDBConnection(context.Background(), "ledger")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NoError(t, second.RefreshConnection(context.Background()))
}

func TestResolverErrors(t *testing.T) {
	cfg := newSQLiteConfig("resolver_errors")
	resolver := gormadapter.NewResolver(cfg, sqlite.NewProvider(cfg))

	_, err := resolver.ResolveDBConnection(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = resolver.ResolveDBConnection(context.Background(), "warehouse")
	assert.ErrorContains(t, err, "oracle")
}

func TestProviderRejectsTypeMismatch(t *testing.T) {
	cfg := newSQLiteConfig("provider_mismatch")
	provider := gormadapter.NewBaseProvider(cfg, "postgres")

	_, err := provider.GetConnection("ledger")
	assert.ErrorContains(t, err, "type mismatch")
}

func TestClassifyDBError(t *testing.T) {
	busy := errors.New("database is locked")
	gormadapter.RegisterErrorClassifier("test-db", func(err error) error {
		if errors.Is(err, busy) {
			return exception.ErrLockAcquisitionTimeout
		}
		return nil
	})

	classified := gormadapter.ClassifyDBError("test-db", busy)
	assert.ErrorIs(t, classified, exception.ErrLockAcquisitionTimeout)
	assert.ErrorIs(t, classified, busy)
	assert.True(t, exception.IsTransient(classified))

	other := errors.New("syntax error")
	assert.Same(t, other, gormadapter.ClassifyDBError("test-db", other))
	assert.Same(t, busy, gormadapter.ClassifyDBError("unregistered", busy))
	assert.NoError(t, gormadapter.ClassifyDBError("test-db", nil))
}
