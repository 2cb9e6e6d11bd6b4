// Package inmemory provides an in-memory implementation of the RunRepository interface.
// It is suitable for tests and for deployments that do not keep run history across restarts.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
)

// InMemoryRunRepository holds run executions in a map.
type InMemoryRunRepository struct {
	executions map[string]*model.RunExecution
	mu         sync.RWMutex
}

// NewInMemoryRunRepository creates an empty InMemoryRunRepository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		executions: make(map[string]*model.RunExecution),
	}
}

// SaveRunExecution persists a new RunExecution.
// It returns an error if a RunExecution with the same ID already exists.
func (r *InMemoryRunRepository) SaveRunExecution(ctx context.Context, execution *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[execution.ID]; exists {
		return fmt.Errorf("RunExecution with ID %s already exists", execution.ID)
	}
	r.executions[execution.ID] = clone(execution)
	return nil
}

// UpdateRunExecution updates an existing RunExecution.
func (r *InMemoryRunRepository) UpdateRunExecution(ctx context.Context, execution *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.executions[execution.ID]
	if !exists {
		return fmt.Errorf("RunExecution with ID %s not found for update: %w", execution.ID, repository.ErrRunExecutionNotFound)
	}
	if stored.Version != execution.Version {
		return exception.NewOptimisticLockingFailureException("repository",
			fmt.Sprintf("RunExecution (ID: %s) with version %d not found for update", execution.ID, execution.Version), nil)
	}
	execution.Version++
	r.executions[execution.ID] = clone(execution)
	return nil
}

// FindRunExecutionByID finds a RunExecution by its ID. The returned value is a copy.
func (r *InMemoryRunRepository) FindRunExecutionByID(ctx context.Context, id string) (*model.RunExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, repository.ErrRunExecutionNotFound
	}
	return clone(execution), nil
}

// FindLatestRunExecution finds the most recently started RunExecution of an operation for a tenant.
func (r *InMemoryRunRepository) FindLatestRunExecution(ctx context.Context, operation, tenantID string) (*model.RunExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *model.RunExecution
	for _, e := range r.executions {
		if e.Operation != operation || e.TenantID != tenantID {
			continue
		}
		if latest == nil || e.StartTime.After(latest.StartTime) {
			latest = e
		}
	}
	if latest == nil {
		return nil, repository.ErrRunExecutionNotFound
	}
	return clone(latest), nil
}

// Close releases resources used by the repository. It holds none.
func (r *InMemoryRunRepository) Close() error {
	return nil
}

// clone copies an execution so callers cannot modify the stored state.
func clone(e *model.RunExecution) *model.RunExecution {
	c := *e
	c.Failures = slices.Clone(e.Failures)
	if e.EndTime != nil {
		end := *e.EndTime
		c.EndTime = &end
	}
	return &c
}

var _ repository.RunRepository = (*InMemoryRunRepository)(nil)
