package usecase

import (
	"context"
	"fmt"

	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// DefaultRunOperator is the default implementation of RunOperator.
type DefaultRunOperator struct {
	runRepository repository.RunRepository
	runLauncher   *SimpleRunLauncher
}

var _ RunOperator = (*DefaultRunOperator)(nil)

// NewDefaultRunOperator creates a new instance of DefaultRunOperator.
func NewDefaultRunOperator(runRepository repository.RunRepository, runLauncher *SimpleRunLauncher) *DefaultRunOperator {
	return &DefaultRunOperator{runRepository: runRepository, runLauncher: runLauncher}
}

// Stop cancels the context of a run in progress.
func (o *DefaultRunOperator) Stop(ctx context.Context, executionID string) error {
	logger.Infof("RunOperator: Stop method called. Execution ID: %s", executionID)

	execution, err := o.runRepository.FindRunExecutionByID(ctx, executionID)
	if err != nil {
		return exception.NewBatchError("run_operator", fmt.Sprintf("Stop processing error: Failed to load RunExecution (ID: %s)", executionID), err, false)
	}
	if execution.Status.IsFinished() {
		logger.Warnf("RunExecution (ID: %s) cannot be stopped as it is already in a finished state (%s).", executionID, execution.Status)
		return exception.NewBatchErrorf("run_operator", "Stop processing error: RunExecution (ID: %s) is already in a finished state (%s)", executionID, execution.Status)
	}

	cancelFunc, ok := o.runLauncher.GetCancelFunc(executionID)
	if !ok {
		logger.Warnf("No CancelFunc found for RunExecution (ID: %s). The run is not in progress in this process.", executionID)
		return exception.NewBatchErrorf("run_operator", "Stop processing error: CancelFunc for RunExecution (ID: %s) not found", executionID)
	}
	cancelFunc()

	logger.Infof("Sent stop signal for RunExecution (ID: %s).", executionID)
	return nil
}
