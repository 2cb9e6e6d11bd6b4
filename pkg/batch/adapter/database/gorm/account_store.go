package gorm

import (
	"context"
	"errors"
	"math"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"gorm.io/gorm"
)

const storeModule = "account_store"

// daysPerYear is the day-count basis of the posted interest (actual/365).
const daysPerYear = 365

// AccountStore reads and posts interest to accounts stored in a relational database.
// It is both the cursor fetcher and the account store of an interest posting run.
type AccountStore struct {
	db     *gorm.DB
	dbType string
}

// NewAccountStore creates an AccountStore. dbType selects the driver error classifier.
func NewAccountStore(db *gorm.DB, dbType string) *AccountStore {
	return &AccountStore{db: db, dbType: dbType}
}

// FetchPage returns the ids of active accounts of the tenant that have not been posted for the
// business date yet, in ascending order after lastMaxID.
func (s *AccountStore) FetchPage(ctx context.Context, ec model.ExecutionContext, lastMaxID model.AccountID, pageSize int) (model.Page, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&AccountEntity{}).
		Where("tenant_id = ? AND status = ? AND id > ?", ec.TenantID(), StatusActive, int64(lastMaxID)).
		Where("last_posted_on IS NULL OR last_posted_on < ?", ec.BusinessDate()).
		Order("id").
		Limit(pageSize).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, exception.NewBatchErrorf(storeModule, "fetch accounts after %d", lastMaxID, ClassifyDBError(s.dbType, err))
	}

	page := make(model.Page, len(ids))
	for i, id := range ids {
		page[i] = model.AccountID(id)
	}
	return page, nil
}

// LoadAccount reads the current state of an account.
func (s *AccountStore) LoadAccount(ctx context.Context, ec model.ExecutionContext, id model.AccountID) (*model.AccountSnapshot, error) {
	var e AccountEntity
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", int64(id), ec.TenantID()).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, exception.NewBatchErrorf(storeModule, "account %d not found", id, exception.ErrAccountNotFound)
	}
	if err != nil {
		return nil, exception.NewBatchErrorf(storeModule, "load account %d", id, ClassifyDBError(s.dbType, err))
	}
	return toSnapshot(e), nil
}

// IsEligibleParent reports whether the owner of the account is active. A missing owner is not eligible.
func (s *AccountStore) IsEligibleParent(ctx context.Context, ec model.ExecutionContext, account *model.AccountSnapshot) (bool, error) {
	var owner OwnerEntity
	err := s.db.WithContext(ctx).
		Select("status").
		Where("id = ? AND tenant_id = ?", account.ParentID, ec.TenantID()).
		Take(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, exception.NewBatchErrorf(storeModule, "load owner %d of account %d", account.ParentID, account.ID, ClassifyDBError(s.dbType, err))
	}
	return owner.Status == StatusActive, nil
}

// ApplyPosting posts the interest accrued since the last posting up to the business date. The balance
// update is conditional on the version read by LoadAccount, and the posting row is written in the same
// transaction, so a failed attempt leaves nothing behind.
func (s *AccountStore) ApplyPosting(ctx context.Context, ec model.ExecutionContext, account *model.AccountSnapshot) error {
	businessDate := ec.BusinessDate()
	if account.LastPostedOn != nil && !account.LastPostedOn.Before(businessDate) {
		return exception.NewBatchErrorf(storeModule, "account %d already posted on %s", account.ID,
			account.LastPostedOn.Format(time.DateOnly), exception.ErrInvalidState)
	}
	if account.Status != StatusActive {
		return exception.NewBatchErrorf(storeModule, "account %d is %s", account.ID, account.Status, exception.ErrBusinessRule)
	}
	if account.Balance < 0 {
		return exception.NewBatchErrorf(storeModule, "account %d has a negative balance", account.ID, exception.ErrBusinessRule)
	}

	days := AccrualDays(account.LastPostedOn, businessDate)
	amount := Interest(account.Balance, account.AnnualRate, days)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&AccountEntity{}).
			Where("id = ? AND version = ?", int64(account.ID), account.Version).
			Updates(map[string]interface{}{
				"balance":        account.Balance + amount,
				"last_posted_on": businessDate,
				"version":        account.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return exception.NewOptimisticLockingFailureException(storeModule, "account version changed since it was loaded", nil)
		}
		return tx.Create(&PostingEntity{
			AccountID:    int64(account.ID),
			BusinessDate: businessDate,
			TenantID:     ec.TenantID(),
			RunID:        ec.RunID(),
			Amount:       amount,
			Days:         days,
			CurrencyCode: account.CurrencyCode,
		}).Error
	})
	if err == nil {
		return nil
	}
	var be *exception.BatchError
	if errors.As(err, &be) {
		return err
	}
	return exception.NewBatchErrorf(storeModule, "post interest to account %d", account.ID, ClassifyDBError(s.dbType, err))
}

// AccrualDays is the number of days interest accrues for: since the last posting, or one day
// for an account that has never been posted.
func AccrualDays(lastPostedOn *time.Time, businessDate time.Time) int {
	if lastPostedOn == nil {
		return 1
	}
	days := int(math.Round(businessDate.Sub(*lastPostedOn).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// Interest returns the simple interest on balance for the given number of days, rounded half away
// from zero to cents.
func Interest(balance, annualRate float64, days int) float64 {
	return math.Round(balance*annualRate*float64(days)/daysPerYear*100) / 100
}

func toSnapshot(e AccountEntity) *model.AccountSnapshot {
	return &model.AccountSnapshot{
		ID:           model.AccountID(e.ID),
		ParentID:     e.OwnerID,
		Status:       e.Status,
		Balance:      e.Balance,
		AnnualRate:   e.AnnualRate,
		LastPostedOn: e.LastPostedOn,
		Version:      e.Version,
		CurrencyCode: e.CurrencyCode,
	}
}

// MigrateLedger creates or updates the ledger tables.
func MigrateLedger(db *gorm.DB) error {
	return db.AutoMigrate(&OwnerEntity{}, &AccountEntity{}, &PostingEntity{})
}

var (
	_ port.CursorFetcher = (*AccountStore)(nil)
	_ port.AccountStore  = (*AccountStore)(nil)
)
