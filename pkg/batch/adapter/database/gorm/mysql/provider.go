// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// DBType is the database type handled by this package.
const DBType = "mysql"

// MySQL server error numbers.
const (
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

func init() {
	gormadapter.RegisterDialector(DBType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
	gormadapter.RegisterErrorClassifier(DBType, ClassifyError)
}

// ConnectionString generates the DSN for MySQL connections. Times are parsed into UTC.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	mc := mysqldriver.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// ClassifyError maps InnoDB deadlocks and lock wait timeouts.
func ClassifyError(err error) error {
	var myErr *mysqldriver.MySQLError
	if !errors.As(err, &myErr) {
		return nil
	}
	switch myErr.Number {
	case errLockDeadlock:
		return exception.ErrDeadlock
	case errLockWaitTimeout:
		return exception.ErrLockAcquisitionTimeout
	}
	return nil
}

// NewProvider creates a new database.DBProvider for MySQL.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, DBType)
}
