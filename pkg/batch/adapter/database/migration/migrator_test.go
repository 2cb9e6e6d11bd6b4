package migration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/migration"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

func newConfig(dsn string) *config.Config {
	cfg := config.NewConfig()
	cfg.Ledger.System.Logging.Level = "SILENT"
	cfg.Ledger.Infrastructure.AccountDBRef = "ledger"
	cfg.Ledger.Infrastructure.HistoryDBRef = "ledger"
	cfg.Ledger.Infrastructure.SchemaMigrations = true
	cfg.Ledger.AdapterConfigs = map[string]interface{}{
		"ledger": map[string]interface{}{"type": "sqlite", "database": dsn},
	}
	return cfg
}

// openShared keeps the shared in-memory database alive while migrations open and close their own
// connections.
func openShared(t *testing.T, dsn string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func TestApplyCreatesLedgerAndHistoryTables(t *testing.T) {
	dsn := "file:migration_apply?mode=memory&cache=shared"
	db := openShared(t, dsn)
	cfg := newConfig(dsn)

	require.NoError(t, migration.Apply(context.Background(), cfg))

	for _, table := range []string{"account_owners", "accounts", "interest_postings", "batch_run_execution",
		"ledger_schema_migrations", "history_schema_migrations"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	// A second run finds nothing to do.
	require.NoError(t, migration.Apply(context.Background(), cfg))
}

func TestMigratedSchemaServesTheAccountStore(t *testing.T) {
	dsn := "file:migration_store?mode=memory&cache=shared"
	db := openShared(t, dsn)
	require.NoError(t, migration.Apply(context.Background(), newConfig(dsn)))

	require.NoError(t, db.Create(&gormadapter.OwnerEntity{ID: 1, TenantID: "acme", Status: gormadapter.StatusActive}).Error)
	require.NoError(t, db.Create(&gormadapter.AccountEntity{
		ID: 1, TenantID: "acme", OwnerID: 1, Status: gormadapter.StatusActive,
		Balance: 1000, AnnualRate: 0.0365, CurrencyCode: "EUR",
	}).Error)

	ec := model.NewExecutionContext("run-1", "acme", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))
	store := gormadapter.NewAccountStore(db, "sqlite")
	page, err := store.FetchPage(context.Background(), ec, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, model.Page{1}, page)

	snap, err := store.LoadAccount(context.Background(), ec, 1)
	require.NoError(t, err)
	require.NoError(t, store.ApplyPosting(context.Background(), ec, snap))

	var count int64
	require.NoError(t, db.Model(&gormadapter.PostingEntity{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplySkipsUnsetReferences(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ledger.Infrastructure.AccountDBRef = ""
	cfg.Ledger.Infrastructure.HistoryDBRef = ""
	assert.NoError(t, migration.Apply(context.Background(), cfg))
}

func TestApplyUnknownConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ledger.Infrastructure.AccountDBRef = "missing"
	assert.ErrorContains(t, migration.Apply(context.Background(), cfg), "not found")
}
