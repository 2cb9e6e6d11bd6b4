package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// MetricRecorder is the abstraction the batch engine records run, wave and unit events through.
// It decouples the engine from the metrics backend (e.g., Prometheus).
type MetricRecorder interface {
	// RecordRunStart records the start of a run.
	RecordRunStart(ctx context.Context, execution *model.RunExecution)

	// RecordRunEnd records the end of a run, including its duration and final status.
	RecordRunEnd(ctx context.Context, execution *model.RunExecution)

	// RecordPageFetched records one cursor fetch and the number of identifiers it returned.
	// prefetched distinguishes background fetches from synchronous ones.
	RecordPageFetched(ctx context.Context, operation string, size int, prefetched bool)

	// RecordWave records a completed wave.
	RecordWave(ctx context.Context, operation string, partitions int, duration time.Duration)

	// RecordUnit records the final outcome of one unit of work.
	RecordUnit(ctx context.Context, operation string, outcome model.Outcome, attempts int)

	// RecordRetry records a retry caused by a transient failure.
	RecordRetry(ctx context.Context, operation string, reason string)
}
