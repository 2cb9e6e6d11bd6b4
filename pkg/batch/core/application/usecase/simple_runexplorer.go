package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// SimpleRunExplorer queries run history through a RunRepository.
type SimpleRunExplorer struct {
	runRepository repository.RunRepository
}

var _ RunExplorer = (*SimpleRunExplorer)(nil)

// NewSimpleRunExplorer creates a new instance of SimpleRunExplorer.
func NewSimpleRunExplorer(runRepository repository.RunRepository) *SimpleRunExplorer {
	return &SimpleRunExplorer{runRepository: runRepository}
}

// GetRunExecution retrieves a RunExecution by its ID.
func (e *SimpleRunExplorer) GetRunExecution(ctx context.Context, executionID string) (*model.RunExecution, error) {
	execution, err := e.runRepository.FindRunExecutionByID(ctx, executionID)
	if err != nil {
		return nil, exception.NewBatchError("run_explorer", fmt.Sprintf("Failed to retrieve RunExecution (ID: %s)", executionID), err, false)
	}
	logger.Debugf("Retrieved RunExecution (ID: %s) from RunRepository.", executionID)
	return execution, nil
}

// GetLastRunExecution retrieves the latest RunExecution of an operation for a tenant.
func (e *SimpleRunExplorer) GetLastRunExecution(ctx context.Context, operation, tenantID string) (*model.RunExecution, error) {
	execution, err := e.runRepository.FindLatestRunExecution(ctx, operation, tenantID)
	if err != nil {
		return nil, exception.NewBatchError("run_explorer", fmt.Sprintf("Failed to retrieve the latest RunExecution of '%s' for tenant '%s'", operation, tenantID), err, false)
	}
	return execution, nil
}
