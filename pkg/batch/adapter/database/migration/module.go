package migration

import (
	"context"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
)

// Apply migrates the account database and, when it is configured, the history database. Each
// migration runs on its own connection.
func Apply(ctx context.Context, cfg *config.Config) error {
	infra := cfg.Ledger.Infrastructure
	targets := []struct {
		name   string
		schema Schema
	}{
		{infra.AccountDBRef, LedgerSchema},
		{infra.HistoryDBRef, HistorySchema},
	}
	for _, t := range targets {
		if t.name == "" {
			continue
		}
		conn, err := gormadapter.Open(cfg, t.name)
		if err != nil {
			return err
		}
		if err := Up(ctx, conn, t.schema); err != nil {
			return err
		}
	}
	return nil
}

// Module runs Apply at startup when infrastructure.schema_migrations is set. The dialect packages
// register the dialectors it opens connections with, so include it after them.
var Module = fx.Invoke(func(cfg *config.Config) error {
	if !cfg.Ledger.Infrastructure.SchemaMigrations {
		return nil
	}
	return Apply(context.Background(), cfg)
})
