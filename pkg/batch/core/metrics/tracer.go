package metrics

import (
	"context"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of runs and waves.
type Tracer interface {
	// StartRunSpan starts a span covering a whole run.
	// It returns the derived context and a function ending the span.
	StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func())

	// StartWaveSpan starts a span covering one wave.
	StartWaveSpan(ctx context.Context, wave int, pageSize int) (context.Context, func())

	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
