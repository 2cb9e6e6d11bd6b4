// Package repository declares the persistence of run history.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
)

// ErrRunExecutionNotFound is the error returned when a RunExecution is not found.
var ErrRunExecutionNotFound = errors.New("run execution not found")

func init() {
	exception.RegisterErrorType("ErrRunExecutionNotFound", ErrRunExecutionNotFound)
}

// RunExecution persists the history record of runs.
type RunExecution interface {
	// SaveRunExecution persists a new RunExecution.
	SaveRunExecution(ctx context.Context, execution *model.RunExecution) error

	// UpdateRunExecution updates the state of an existing RunExecution and increments its Version.
	// A stale Version yields an optimistic locking failure.
	UpdateRunExecution(ctx context.Context, execution *model.RunExecution) error

	// FindRunExecutionByID finds a RunExecution by its ID.
	FindRunExecutionByID(ctx context.Context, id string) (*model.RunExecution, error)

	// FindLatestRunExecution finds the most recently started RunExecution of an operation for a tenant.
	FindLatestRunExecution(ctx context.Context, operation, tenantID string) (*model.RunExecution, error)
}

// RunRepository is the repository of run history.
type RunRepository interface {
	RunExecution

	// Close releases resources used by the repository.
	Close() error
}
