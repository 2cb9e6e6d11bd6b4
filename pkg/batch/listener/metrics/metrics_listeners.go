package metrics

import (
	"context"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
)

// MetricsRunListener records run start and end on the MetricRecorder.
// Waves are recorded by the coordinator itself.
type MetricsRunListener struct {
	recorder metrics.MetricRecorder
}

func NewMetricsRunListener(recorder metrics.MetricRecorder) *MetricsRunListener {
	return &MetricsRunListener{recorder: recorder}
}

func (l *MetricsRunListener) BeforeRun(ctx context.Context, execution *model.RunExecution) {
	l.recorder.RecordRunStart(ctx, execution)
}

func (l *MetricsRunListener) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
}

func (l *MetricsRunListener) AfterRun(ctx context.Context, execution *model.RunExecution) {
	l.recorder.RecordRunEnd(ctx, execution)
}

var _ port.RunListener = (*MetricsRunListener)(nil)
