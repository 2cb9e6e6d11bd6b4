package mysql_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm/mysql"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var ec = model.NewExecutionContext("run-1", "acme", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))

func setupGormMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)
	return gormDB, mock
}

func TestApplyPostingDeadlockIsTransient(t *testing.T) {
	db, mock := setupGormMock(t)
	store := gormadapter.NewAccountStore(db, mysql.DBType)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `accounts`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	err := store.ApplyPosting(context.Background(), ec, &model.AccountSnapshot{
		ID: 7, Status: gormadapter.StatusActive, Balance: 100, AnnualRate: 0.05, Version: 3,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrDeadlock)
	assert.True(t, exception.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPostingStaleVersion(t *testing.T) {
	db, mock := setupGormMock(t)
	store := gormadapter.NewAccountStore(db, mysql.DBType)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `accounts`")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.ApplyPosting(context.Background(), ec, &model.AccountSnapshot{
		ID: 7, Status: gormadapter.StatusActive, Balance: 100, AnnualRate: 0.05, Version: 3,
	})
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPageLockTimeoutIsTransient(t *testing.T) {
	db, mock := setupGormMock(t)
	store := gormadapter.NewAccountStore(db, mysql.DBType)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id` FROM `accounts`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})

	_, err := store.FetchPage(context.Background(), ec, 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrLockAcquisitionTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchPageReadsIDs(t *testing.T) {
	db, mock := setupGormMock(t)
	store := gormadapter.NewAccountStore(db, mysql.DBType)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `id` FROM `accounts`")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11).AddRow(12).AddRow(15))

	page, err := store.FetchPage(context.Background(), ec, 10, 3)
	require.NoError(t, err)
	assert.Equal(t, model.Page{11, 12, 15}, page)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionString(t *testing.T) {
	dsn := mysql.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db", Port: 3306, User: "batch", Password: "secret", Database: "ledger",
	})
	cfg, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "ledger", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, time.UTC, cfg.Loc)
}
