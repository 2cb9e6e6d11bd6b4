package usecase

import (
	"context"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// RunLauncher starts a run of the configured batch operation.
type RunLauncher interface {
	// Launch runs every eligible account once for businessDate and returns the finished history
	// record. A zero businessDate resolves to batch.business_date or today in the configured timezone.
	// The error is non-nil when the run could not be started, was aborted, or its history could not be
	// finalized. Per-account failures are reported in the execution, not as an error.
	Launch(ctx context.Context, businessDate time.Time) (*model.RunExecution, error)
}

// RunOperator performs operations on runs in progress.
type RunOperator interface {
	// Stop cancels a run started by this process. The run finishes the wave in flight and is
	// recorded as FAILED.
	Stop(ctx context.Context, executionID string) error
}

// RunExplorer queries run history.
type RunExplorer interface {
	// GetRunExecution retrieves a RunExecution by its ID.
	GetRunExecution(ctx context.Context, executionID string) (*model.RunExecution, error)

	// GetLastRunExecution retrieves the most recent RunExecution of an operation for a tenant.
	GetLastRunExecution(ctx context.Context, operation, tenantID string) (*model.RunExecution, error)
}

// Coordinator runs one pass over the eligible accounts.
type Coordinator interface {
	RunOnce(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error)
}
