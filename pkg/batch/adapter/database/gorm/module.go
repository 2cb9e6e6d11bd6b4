package gorm

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// AccountStoreParams are the Fx dependencies of the account store.
type AccountStoreParams struct {
	fx.In
	Config   *config.Config
	Resolver database.DBConnectionResolver
}

// NewAccountStoreProvider opens the account database named by infrastructure.account_db_ref and,
// when infrastructure.auto_migrate is set, creates the ledger tables.
func NewAccountStoreProvider(p AccountStoreParams) (*AccountStore, error) {
	name := p.Config.Ledger.Infrastructure.AccountDBRef
	conn, err := p.Resolver.ResolveDBConnection(context.Background(), name)
	if err != nil {
		return nil, err
	}
	db, err := GormDB(conn)
	if err != nil {
		return nil, err
	}
	if p.Config.Ledger.Infrastructure.AutoMigrate {
		if err := MigrateLedger(db); err != nil {
			return nil, fmt.Errorf("migrate ledger tables on '%s': %w", name, err)
		}
		logger.Infof("Ledger tables migrated on '%s'.", name)
	}
	return NewAccountStore(db, conn.Type()), nil
}

// Module provides the connection resolver and the account store. Concrete DB providers come from the
// dialect packages (sqlite, postgres, mysql).
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGormDBConnectionResolver,
		fx.As(new(database.DBConnectionResolver)),
	)),
	fx.Provide(NewAccountStoreProvider),
	fx.Provide(
		func(s *AccountStore) port.CursorFetcher { return s },
		func(s *AccountStore) port.AccountStore { return s },
	),
)
