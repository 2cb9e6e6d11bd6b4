// Package sql provides a GORM implementation of the RunRepository interface.
package sql

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ledgerbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// SQLRunRepository implements repository.RunRepository on a named database connection.
type SQLRunRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the name of the database connection holding the history (e.g., "history").
	dbName string
}

// NewSQLRunRepository creates a new instance of SQLRunRepository.
func NewSQLRunRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRunRepository {
	return &SQLRunRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
	}
}

// getDB resolves the connection on every call so a reconnect by the resolver is picked up.
func (r *SQLRunRepository) getDB(ctx context.Context) (*gorm.DB, string, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, "", exception.NewBatchError("SQLRunRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false)
	}
	db, err := gormadapter.GormDB(conn)
	if err != nil {
		return nil, "", exception.NewBatchError("SQLRunRepository", "unsupported connection", err, false)
	}
	return db.WithContext(ctx), conn.Type(), nil
}

// Migrate creates or updates the history table.
func (r *SQLRunRepository) Migrate(ctx context.Context) error {
	db, _, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	return db.AutoMigrate(&RunExecutionEntity{})
}

func (r *SQLRunRepository) SaveRunExecution(ctx context.Context, execution *model.RunExecution) error {
	const op = "SQLRunRepository.SaveRunExecution"
	db, dbType, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	if err := db.Create(fromDomainRunExecution(execution)).Error; err != nil {
		return exception.NewBatchErrorf(op, "failed to save RunExecution (ID: %s)", execution.ID, gormadapter.ClassifyDBError(dbType, err))
	}
	return nil
}

func (r *SQLRunRepository) UpdateRunExecution(ctx context.Context, execution *model.RunExecution) error {
	const op = "SQLRunRepository.UpdateRunExecution"
	db, dbType, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	originalVersion := execution.Version
	execution.Version++
	res := db.Model(&RunExecutionEntity{}).
		Where("id = ? AND version = ?", execution.ID, originalVersion).
		Select("*").Omit("id").
		Updates(fromDomainRunExecution(execution))
	if res.Error != nil {
		execution.Version = originalVersion
		return exception.NewBatchErrorf(op, "failed to update RunExecution (ID: %s)", execution.ID, gormadapter.ClassifyDBError(dbType, res.Error))
	}
	if res.RowsAffected == 0 {
		execution.Version = originalVersion
		return exception.NewOptimisticLockingFailureException("repository",
			fmt.Sprintf("RunExecution (ID: %s) with version %d not found for update", execution.ID, originalVersion), nil)
	}
	return nil
}

func (r *SQLRunRepository) FindRunExecutionByID(ctx context.Context, id string) (*model.RunExecution, error) {
	const op = "SQLRunRepository.FindRunExecutionByID"
	db, dbType, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var entity RunExecutionEntity
	err = db.Where("id = ?", id).Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrRunExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchErrorf(op, "failed to find RunExecution by ID: %s", id, gormadapter.ClassifyDBError(dbType, err))
	}
	return toDomainRunExecution(&entity), nil
}

func (r *SQLRunRepository) FindLatestRunExecution(ctx context.Context, operation, tenantID string) (*model.RunExecution, error) {
	const op = "SQLRunRepository.FindLatestRunExecution"
	db, dbType, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	var entity RunExecutionEntity
	err = db.Where("operation = ? AND tenant_id = ?", operation, tenantID).
		Order("start_time DESC").
		Take(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrRunExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchErrorf(op, "failed to find latest RunExecution of %s/%s", operation, tenantID, gormadapter.ClassifyDBError(dbType, err))
	}
	return toDomainRunExecution(&entity), nil
}

// Close implements repository.RunRepository. The connection is owned by its DBProvider.
func (r *SQLRunRepository) Close() error {
	return nil
}

var _ repository.RunRepository = (*SQLRunRepository)(nil)

// RunRepositoryParams defines the dependencies required by NewRunRepository.
type RunRepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver `optional:"true"`
	Cfg        *config.Config
}

// NewRunRepository returns the SQL repository on infrastructure.history_db_ref, or an in-memory
// repository when no history database is configured.
func NewRunRepository(p RunRepositoryParams) (repository.RunRepository, error) {
	dbName := p.Cfg.Ledger.Infrastructure.HistoryDBRef
	if dbName == "" {
		logger.Infof("No history database configured; run history is kept in memory.")
		return inmemory.NewInMemoryRunRepository(), nil
	}
	if p.DBResolver == nil {
		return nil, fmt.Errorf("history database '%s' configured but no database adapter is installed", dbName)
	}

	repo := NewSQLRunRepository(p.DBResolver, dbName)
	if p.Cfg.Ledger.Infrastructure.AutoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("migrate history table on '%s': %w", dbName, err)
		}
	}
	return repo, nil
}

// Module provides the run history repository.
var Module = fx.Provide(NewRunRepository)
