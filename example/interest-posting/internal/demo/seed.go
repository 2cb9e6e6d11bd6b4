// Package demo fills an empty ledger with generated accounts so the example can be run as is.
package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"gorm.io/gorm"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// accountsPerOwner is the number of generated accounts that share one owner.
const accountsPerOwner = 3

// SeedFromEnv seeds DEMO_ACCOUNTS accounts into the account database when it holds none.
// The account store is requested so that the ledger tables exist before seeding.
func SeedFromEnv(cfg *config.Config, resolver database.DBConnectionResolver, _ *gormadapter.AccountStore) error {
	raw := os.Getenv("DEMO_ACCOUNTS")
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fmt.Errorf("DEMO_ACCOUNTS must be a non-negative integer, got %q", raw)
	}

	conn, err := resolver.ResolveDBConnection(context.Background(), cfg.Ledger.Infrastructure.AccountDBRef)
	if err != nil {
		return err
	}
	db, err := gormadapter.GormDB(conn)
	if err != nil {
		return err
	}
	seeded, err := Seed(db, cfg.Ledger.Batch.TenantID, n)
	if err != nil {
		return err
	}
	if seeded {
		logger.Infof("Seeded %d demo account(s) for tenant '%s'.", n, cfg.Ledger.Batch.TenantID)
	}
	return nil
}

// Seed inserts n active accounts and their owners for tenantID unless the tenant already has
// accounts. Every tenth owner is frozen so that some accounts are rejected by the posting.
func Seed(db *gorm.DB, tenantID string, n int) (bool, error) {
	var count int64
	if err := db.Model(&gormadapter.AccountEntity{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 || n == 0 {
		return false, nil
	}

	owners := make([]gormadapter.OwnerEntity, 0, n/accountsPerOwner+1)
	accounts := make([]gormadapter.AccountEntity, 0, n)
	for i := 1; i <= n; i++ {
		ownerID := int64((i-1)/accountsPerOwner + 1)
		if (i-1)%accountsPerOwner == 0 {
			status := gormadapter.StatusActive
			if ownerID%10 == 0 {
				status = gormadapter.StatusFrozen
			}
			owners = append(owners, gormadapter.OwnerEntity{
				ID:       ownerID,
				TenantID: tenantID,
				Name:     fmt.Sprintf("Owner %d", ownerID),
				Status:   status,
			})
		}
		accounts = append(accounts, gormadapter.AccountEntity{
			ID:           int64(i),
			TenantID:     tenantID,
			OwnerID:      ownerID,
			Status:       gormadapter.StatusActive,
			Balance:      float64(rand.IntN(1_000_000)) / 100,
			AnnualRate:   0.01 + float64(rand.IntN(400))/10_000,
			CurrencyCode: "EUR",
		})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&owners, 500).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(&accounts, 500).Error
	})
	return err == nil, err
}
