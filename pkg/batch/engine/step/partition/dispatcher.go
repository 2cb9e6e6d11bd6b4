package partition

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// DefaultPollInterval is how often AwaitAll logs partial completion while a wave is running.
const DefaultPollInterval = time.Second

// UnitExecutor processes one unit of work and reports its outcome as data.
type UnitExecutor interface {
	Execute(ctx context.Context, ec model.ExecutionContext, unit model.Unit) model.Result
}

// workerTask is the state of one partition's task. Fields other than future are written only by the
// worker goroutine and read only after the future has completed.
type workerTask struct {
	partition model.Partition
	units     []model.Unit
	next      int
	result    model.WorkerResult
	future    *Future[model.WorkerResult]
}

// Wave is the set of tasks dispatched for one page.
type Wave struct {
	Number int
	tasks  []*workerTask
}

// Size returns the number of tasks in the wave.
func (w *Wave) Size() int {
	return len(w.tasks)
}

// Dispatcher submits one task per non-empty partition to the pool and collects their results.
type Dispatcher struct {
	pool         *Pool
	executor     UnitExecutor
	pollInterval time.Duration
}

// NewDispatcher creates a Dispatcher running tasks on pool.
func NewDispatcher(pool *Pool, executor UnitExecutor, pollInterval time.Duration) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Dispatcher{pool: pool, executor: executor, pollInterval: pollInterval}
}

// Dispatch submits the non-empty partitions of a wave. Empty partitions are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, ec model.ExecutionContext, number int, partitions []model.Partition) *Wave {
	wave := &Wave{Number: number}
	for _, p := range NonEmpty(partitions) {
		t := &workerTask{
			partition: p,
			units:     p.Units(),
			result:    model.WorkerResult{Partition: p.Index},
		}
		t.future = Submit(ctx, d.pool, func(ctx context.Context) (model.WorkerResult, error) {
			return d.runPartition(ctx, ec, t), nil
		})
		wave.tasks = append(wave.tasks, t)
	}
	logger.Debugf("Wave %d: dispatched %d partition(s).", number, len(wave.tasks))
	return wave
}

func (d *Dispatcher) runPartition(ctx context.Context, ec model.ExecutionContext, t *workerTask) model.WorkerResult {
	name := model.PartitionName(t.partition.Index)
	logger.Debugf("Worker '%s' processing %d unit(s) from account %d.", name, len(t.units), t.partition.IDs[0])
	for ; t.next < len(t.units); t.next++ {
		if err := ctx.Err(); err != nil {
			// Units not yet started are left out of the result.
			logger.Warnf("Worker '%s' stopped with %d unit(s) not started: %v", name, len(t.units)-t.next, err)
			break
		}
		unit := t.units[t.next]
		res := d.executor.Execute(ctx, ec, unit)
		if res.Outcome == model.OutcomeSuccess {
			t.result.Processed = append(t.result.Processed, unit.AccountID)
			continue
		}
		reason := res.Reason
		if reason == "" {
			reason = exception.ExtractErrorMessage(res.Err)
		}
		t.result.Failures = append(t.result.Failures, model.Failure{
			AccountID: unit.AccountID,
			Reason:    reason,
			Attempts:  res.Attempts,
			Err:       res.Err,
		})
	}
	logger.Debugf("Worker '%s' finished: %d processed, %d failed.", name, len(t.result.Processed), len(t.result.Failures))
	return t.result
}

// AwaitAll blocks until every task of the wave has completed and returns their results in partition order.
// A task that died records every unit it had not finished as a terminal failure.
func (d *Dispatcher) AwaitAll(wave *Wave) []model.WorkerResult {
	for {
		var pending *workerTask
		done := 0
		for _, t := range wave.tasks {
			if t.future.Done() {
				done++
			} else if pending == nil {
				pending = t
			}
		}
		if pending == nil {
			break
		}
		logger.Debugf("Wave %d: %d of %d partition(s) complete.", wave.Number, done, len(wave.tasks))

		timer := time.NewTimer(d.pollInterval)
		select {
		case <-pending.future.done:
		case <-timer.C:
		}
		timer.Stop()
	}

	results := make([]model.WorkerResult, 0, len(wave.tasks))
	completed := 0
	for _, t := range wave.tasks {
		res, err := t.future.Wait()
		if err == nil {
			completed++
			results = append(results, res)
			continue
		}
		results = append(results, abandon(t, err))
	}
	if completed < len(wave.tasks) {
		logger.Errorf("Wave %d: not all threads completed (%d of %d).", wave.Number, completed, len(wave.tasks))
	}
	return results
}

// abandon converts the unfinished units of a dead task into terminal failures.
func abandon(t *workerTask, cause error) model.WorkerResult {
	res := t.result
	for _, unit := range t.units[t.next:] {
		res.Failures = append(res.Failures, model.Failure{
			AccountID: unit.AccountID,
			Reason:    fmt.Sprintf("worker %s terminated: %s", model.PartitionName(t.partition.Index), exception.ExtractErrorMessage(cause)),
			Attempts:  0,
			Err:       cause,
		})
	}
	logger.Errorf("Worker '%s' terminated with %d unit(s) unfinished: %v", model.PartitionName(t.partition.Index), len(t.units)-t.next, cause)
	return res
}
