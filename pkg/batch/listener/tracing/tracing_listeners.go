package tracing

import (
	"context"
	"errors"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
)

// TracingRunListener annotates the run span with lifecycle events. The span itself is opened by the
// launcher so that the coordinator's wave spans become its children.
type TracingRunListener struct {
	tracer metrics.Tracer
}

func NewTracingRunListener(tracer metrics.Tracer) *TracingRunListener {
	return &TracingRunListener{tracer: tracer}
}

func (l *TracingRunListener) BeforeRun(ctx context.Context, execution *model.RunExecution) {
	l.tracer.RecordEvent(ctx, "run_started", map[string]interface{}{
		"tenant_id":     execution.TenantID,
		"business_date": execution.BusinessDate.Format(time.DateOnly),
	})
}

func (l *TracingRunListener) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
}

func (l *TracingRunListener) AfterRun(ctx context.Context, execution *model.RunExecution) {
	l.tracer.RecordEvent(ctx, "run_finished", map[string]interface{}{
		"status":    execution.Status.String(),
		"pages":     execution.Pages,
		"processed": execution.Processed,
		"failures":  len(execution.Failures),
	})
	if execution.Status == model.BatchStatusFailed {
		l.tracer.RecordError(ctx, "run", errors.New(execution.ExitMessage))
	}
}

var _ port.RunListener = (*TracingRunListener)(nil)
