package metrics

import (
	"context"
	"sync"
	"time"

	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

// DefaultAsyncBufferSize is the event queue size used when none is configured.
const DefaultAsyncBufferSize = 100

// DefaultSendTimeout is how long a caller waits for room in a full queue before the event is dropped.
const DefaultSendTimeout = 5 * time.Second

// MetricEvent is a metric event recorded asynchronously.
type MetricEvent struct {
	Type       string
	Ctx        context.Context
	Execution  *model.RunExecution
	Operation  string
	Size       int
	Prefetched bool
	Partitions int
	Duration   time.Duration
	Outcome    model.Outcome
	Attempts   int
	Reason     string
}

// Metric event type constants
const (
	MetricEventTypeRunStart    = "run_start"
	MetricEventTypeRunEnd      = "run_end"
	MetricEventTypePageFetched = "page_fetched"
	MetricEventTypeWave        = "wave"
	MetricEventTypeUnit        = "unit"
	MetricEventTypeRetry       = "retry"
)

// AsyncMetricRecorder pushes metric events to a channel and records them on the wrapped
// recorder from a single goroutine, so workers never block on the metrics backend.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder
	sendTimeout  time.Duration
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
// A bufferSize of 0 or less uses DefaultAsyncBufferSize.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
		sendTimeout:  DefaultSendTimeout,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

// SetSendTimeout changes how long a caller waits for room in a full queue. Call it before recording.
func (r *AsyncMetricRecorder) SetSendTimeout(d time.Duration) {
	r.sendTimeout = d
}

// BufferSize returns the queue size for cfg: the configured size, raised to two events per account of
// a page so that a full wave of unit outcomes fits without waiting.
func BufferSize(cfg *config.Config) int {
	size := cfg.Ledger.Metrics.AsyncBufferSize
	if size <= 0 {
		size = DefaultAsyncBufferSize
	}
	return max(size, 2*cfg.Ledger.Batch.PageSize)
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	ctx := event.Ctx
	switch event.Type {
	case MetricEventTypeRunStart:
		r.syncRecorder.RecordRunStart(ctx, event.Execution)
	case MetricEventTypeRunEnd:
		r.syncRecorder.RecordRunEnd(ctx, event.Execution)
	case MetricEventTypePageFetched:
		r.syncRecorder.RecordPageFetched(ctx, event.Operation, event.Size, event.Prefetched)
	case MetricEventTypeWave:
		r.syncRecorder.RecordWave(ctx, event.Operation, event.Partitions, event.Duration)
	case MetricEventTypeUnit:
		r.syncRecorder.RecordUnit(ctx, event.Operation, event.Outcome, event.Attempts)
	case MetricEventTypeRetry:
		r.syncRecorder.RecordRetry(ctx, event.Operation, event.Reason)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after recording every queued event. It is safe to call more than once.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		logger.Debugf("AsyncMetricRecorder: Sending shutdown signal...")
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

// sendEvent queues an event. When the queue is full the caller waits up to the send timeout, and the
// event is dropped with a warning only if no room frees up or the recorder is closed.
func (r *AsyncMetricRecorder) sendEvent(ctx context.Context, event MetricEvent) {
	event.Ctx = context.WithoutCancel(ctx)
	select {
	case r.eventQueue <- event:
		return
	default:
	}

	timer := time.NewTimer(r.sendTimeout)
	defer timer.Stop()
	select {
	case r.eventQueue <- event:
	case <-r.stopCh:
		logger.Warnf("AsyncMetricRecorder: Recorder is closed (type: %s, operation: %s). Event discarded.", event.Type, event.Operation)
	case <-timer.C:
		logger.Warnf("AsyncMetricRecorder: Event queue stayed full for %s (type: %s, operation: %s). Event discarded.", r.sendTimeout, event.Type, event.Operation)
	}
}

// RecordRunStart asynchronously records the start of a run.
// The execution is copied because the launcher keeps mutating it.
func (r *AsyncMetricRecorder) RecordRunStart(ctx context.Context, execution *model.RunExecution) {
	snapshot := *execution
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRunStart, Execution: &snapshot, Operation: execution.Operation})
}

// RecordRunEnd asynchronously records the end of a run.
func (r *AsyncMetricRecorder) RecordRunEnd(ctx context.Context, execution *model.RunExecution) {
	snapshot := *execution
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRunEnd, Execution: &snapshot, Operation: execution.Operation})
}

// RecordPageFetched asynchronously records one cursor fetch.
func (r *AsyncMetricRecorder) RecordPageFetched(ctx context.Context, operation string, size int, prefetched bool) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypePageFetched, Operation: operation, Size: size, Prefetched: prefetched})
}

// RecordWave asynchronously records a completed wave.
func (r *AsyncMetricRecorder) RecordWave(ctx context.Context, operation string, partitions int, duration time.Duration) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeWave, Operation: operation, Partitions: partitions, Duration: duration})
}

// RecordUnit asynchronously records the outcome of one unit of work.
func (r *AsyncMetricRecorder) RecordUnit(ctx context.Context, operation string, outcome model.Outcome, attempts int) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeUnit, Operation: operation, Outcome: outcome, Attempts: attempts})
}

// RecordRetry asynchronously records a retry.
func (r *AsyncMetricRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	r.sendEvent(ctx, MetricEvent{Type: MetricEventTypeRetry, Operation: operation, Reason: reason})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// NewAsyncMetricRecorderWrapper is used with fx.Decorate. It wraps the provided MetricRecorder and
// drains the queue when the application stops.
func NewAsyncMetricRecorderWrapper(lc fx.Lifecycle, cfg *config.Config, syncRecorder metrics.MetricRecorder) metrics.MetricRecorder {
	asyncRecorder := NewAsyncMetricRecorder(BufferSize(cfg), syncRecorder)
	lc.Append(fx.StopHook(asyncRecorder.Close))
	logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
	return asyncRecorder
}
