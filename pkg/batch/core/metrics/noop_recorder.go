package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordRunStart(ctx context.Context, execution *model.RunExecution) {}
func (r *NoOpMetricRecorder) RecordRunEnd(ctx context.Context, execution *model.RunExecution)   {}
func (r *NoOpMetricRecorder) RecordPageFetched(ctx context.Context, operation string, size int, prefetched bool) {
}
func (r *NoOpMetricRecorder) RecordWave(ctx context.Context, operation string, partitions int, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordUnit(ctx context.Context, operation string, outcome model.Outcome, attempts int) {
}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, operation string, reason string) {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartWaveSpan(ctx context.Context, wave int, pageSize int) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
