// Package ports declares outbound integration points that are not part of the batch engine itself.
package ports

import (
	"context"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// Notifier notifies external systems about the result of a run.
type Notifier interface {
	// NotifyRunCompletion is called once per run after its history record has been finalized.
	NotifyRunCompletion(ctx context.Context, execution *model.RunExecution)
}
