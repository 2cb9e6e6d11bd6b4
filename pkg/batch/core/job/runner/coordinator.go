package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/partition"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/prefetch"
	exception "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// State is a state of the run coordinator.
type State int

const (
	StateFetching State = iota
	StatePartitioning
	StateDispatching
	StateAwaiting
	StateMoreWork
	StateDrainingQueue
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StatePartitioning:
		return "PARTITIONING"
	case StateDispatching:
		return "DISPATCHING"
	case StateAwaiting:
		return "AWAITING"
	case StateMoreWork:
		return "MORE_WORK"
	case StateDrainingQueue:
		return "DRAINING_QUEUE"
	default:
		return "DONE"
	}
}

// RunCoordinator drives one run: it pulls pages, partitions them, dispatches each wave to the
// worker pool and waits for it, until enumeration is exhausted and the prefetch queue is drained.
type RunCoordinator struct {
	cfg          *config.BatchConfig
	fetcher      port.CursorFetcher
	executor     partition.UnitExecutor
	pool         *partition.Pool
	listeners    []port.RunListener
	recorder     metrics.MetricRecorder
	tracer       metrics.Tracer
	pollInterval time.Duration
}

// NewRunCoordinator creates a RunCoordinator. The pool must have at least WorkerCount+1 goroutines.
func NewRunCoordinator(
	cfg *config.BatchConfig,
	fetcher port.CursorFetcher,
	executor partition.UnitExecutor,
	pool *partition.Pool,
	listeners []port.RunListener,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *RunCoordinator {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	if pool.Size() < cfg.WorkerCount+1 {
		logger.Warnf("Worker pool has %d goroutines for %d workers; prefetch will compete with workers.", pool.Size(), cfg.WorkerCount)
	}
	return &RunCoordinator{
		cfg:          cfg,
		fetcher:      fetcher,
		executor:     executor,
		pool:         pool,
		listeners:    listeners,
		recorder:     recorder,
		tracer:       tracer,
		pollInterval: partition.DefaultPollInterval,
	}
}

// SetPollInterval changes how often partial wave completion is logged.
func (c *RunCoordinator) SetPollInterval(d time.Duration) {
	c.pollInterval = d
}

// waveState is the bookkeeping of the wave in flight.
type waveState struct {
	number     int
	page       model.Page
	partitions []model.Partition
	dispatched *partition.Wave
	refill     *partition.Future[int]
	ctx        context.Context
	endSpan    func()
	start      time.Time
}

// RunOnce processes every eligible account once. Unit failures are reported in the RunResult.
// The error is non-nil only when the run was aborted, in which case the RunResult covers the waves
// completed so far.
func (c *RunCoordinator) RunOnce(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
	queue := prefetch.NewQueue(c.fetcher, c.recorder, c.cfg.Operation, c.cfg.PageSize, c.cfg.PrefetchQueueCapacity)
	dispatcher := partition.NewDispatcher(c.pool, c.executor, c.pollInterval)
	outcome := model.NewJobOutcome()

	var (
		cursor model.AccountID
		wave   waveState
	)
	state := StateFetching

	for state != StateDone {
		logger.Debugf("Run '%s': state %s.", ec.RunID(), state)

		switch state {
		case StateFetching:
			if err := ctx.Err(); err != nil {
				logger.Warnf("Run '%s' interrupted before wave %d: %v", ec.RunID(), wave.number+1, err)
				return outcome.Result(), exception.NewBatchError("coordinator", "run interrupted", err, false)
			}

			page, ok := queue.TryTake()
			if !ok {
				if queue.Exhausted() {
					state = StateDone
					continue
				}
				var err error
				page, err = queue.Fetch(ctx, ec, cursor)
				if err != nil {
					logger.Errorf("Run '%s': enumeration failed after account %d: %v", ec.RunID(), cursor, err)
					c.tracer.RecordError(ctx, "coordinator", err)
					return outcome.Result(), err
				}
			}
			if page.IsEmpty() {
				state = StateDone
				continue
			}

			cursor = page.Max()
			wave = waveState{number: wave.number + 1, page: page, start: time.Now()}
			wave.ctx, wave.endSpan = c.tracer.StartWaveSpan(ctx, wave.number, len(page))
			if !queue.Exhausted() && queue.Len() < queue.Capacity() {
				waveMax := cursor
				wave.refill = partition.Submit(wave.ctx, c.pool, func(ctx context.Context) (int, error) {
					return queue.Refill(ctx, ec, waveMax)
				})
			}
			state = StatePartitioning

		case StatePartitioning:
			wave.partitions = partition.Partition(wave.page, c.cfg.WorkerCount)
			state = StateDispatching

		case StateDispatching:
			wave.dispatched = dispatcher.Dispatch(wave.ctx, ec, wave.number, wave.partitions)
			state = StateAwaiting

		case StateAwaiting:
			results := dispatcher.AwaitAll(wave.dispatched)
			outcome.MergeWave(results)

			var refillErr error
			if wave.refill != nil {
				_, refillErr = wave.refill.Wait()
			}
			c.finishWave(ec, wave, results)
			if err := ctx.Err(); err != nil {
				logger.Warnf("Run '%s' interrupted during wave %d: %v", ec.RunID(), wave.number, err)
				return outcome.Result(), exception.NewBatchError("coordinator", "run interrupted", err, false)
			}
			if refillErr != nil {
				logger.Errorf("Run '%s': prefetch after account %d failed: %v", ec.RunID(), cursor, refillErr)
				c.tracer.RecordError(ctx, "coordinator", refillErr)
				return outcome.Result(), refillErr
			}

			switch {
			case queue.Len() > 0 && queue.Exhausted():
				state = StateDrainingQueue
			case queue.Len() > 0 || !queue.Exhausted():
				state = StateMoreWork
			default:
				state = StateDone
			}

		case StateMoreWork, StateDrainingQueue:
			state = StateFetching
		}
	}

	result := outcome.Result()
	logger.Infof("Run '%s' done: %d page(s), %d account(s) posted, %d failure(s).",
		ec.RunID(), result.Pages, result.Processed, len(result.Failures))
	return result, nil
}

func (c *RunCoordinator) finishWave(ec model.ExecutionContext, wave waveState, results []model.WorkerResult) {
	summary := port.WaveSummary{
		Number:     wave.number,
		PageSize:   len(wave.page),
		Partitions: wave.dispatched.Size(),
		Duration:   time.Since(wave.start),
	}
	for _, r := range results {
		summary.Processed += len(r.Processed)
		summary.Failures += len(r.Failures)
	}

	c.recorder.RecordWave(wave.ctx, c.cfg.Operation, summary.Partitions, summary.Duration)
	c.tracer.RecordEvent(wave.ctx, "wave_completed", map[string]interface{}{
		"processed": summary.Processed,
		"failures":  summary.Failures,
	})
	for _, l := range c.listeners {
		l.AfterWave(wave.ctx, ec, summary)
	}
	wave.endSpan()
}
