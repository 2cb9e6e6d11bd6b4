package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/partition"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/ledgerbatch/pkg/batch/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ec = model.NewExecutionContext("run-1", "acme", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC))

type waveRecorder struct {
	mu    sync.Mutex
	waves []port.WaveSummary
}

func (w *waveRecorder) BeforeRun(ctx context.Context, execution *model.RunExecution) {}
func (w *waveRecorder) AfterRun(ctx context.Context, execution *model.RunExecution)  {}
func (w *waveRecorder) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waves = append(w.waves, wave)
}

type fixture struct {
	ledger  *testutil.FakeLedger
	sleeper *testutil.NoSleep
	waves   *waveRecorder
	coord   *runner.RunCoordinator
}

func newFixture(t *testing.T, ledger *testutil.FakeLedger, workers, pageSize, capacity, maxRetries int) *fixture {
	t.Helper()
	cfg := &config.BatchConfig{
		Operation:             "interest_posting",
		WorkerCount:           workers,
		PageSize:              pageSize,
		PrefetchQueueCapacity: capacity,
		Retry:                 config.RetryConfig{MaxRetries: maxRetries, MaxBackoffSeconds: 5},
	}
	pool := partition.NewPool(workers + 1)
	t.Cleanup(pool.Shutdown)

	sleeper := &testutil.NoSleep{}
	exec := retry.NewExecutor(cfg.Operation, ledger, retry.NewRetryPolicy(maxRetries, 5), retry.WithSleeper(sleeper))
	waves := &waveRecorder{}
	coord := runner.NewRunCoordinator(cfg, ledger, exec, pool, []port.RunListener{waves}, nil, nil)
	coord.SetPollInterval(5 * time.Millisecond)
	return &fixture{ledger: ledger, sleeper: sleeper, waves: waves, coord: coord}
}

func TestRunOnceProcessesEveryAccountExactlyOnce(t *testing.T) {
	ids := testutil.Seq(1, 50)
	f := newFixture(t, testutil.NewFakeLedger(ids...), 3, 7, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 50, res.Processed)
	assert.Equal(t, 8, res.Pages)

	postings := f.ledger.Postings()
	require.Len(t, postings, 50)
	for _, id := range ids {
		assert.Equal(t, 1, postings[id], "account %d", id)
	}
	assert.Len(t, f.waves.waves, 8)
}

func TestRunOncePrefetchFetchCount(t *testing.T) {
	f := newFixture(t, testutil.NewFakeLedger(testutil.Seq(1, 7)...), 2, 3, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 3, f.ledger.FetchCalls())
	assert.Equal(t, []model.AccountID{0, 3, 6}, f.ledger.FetchCursors())
	assert.Len(t, f.ledger.Postings(), 7)
	require.Len(t, f.waves.waves, 3)
	assert.Equal(t, []int{3, 3, 1}, []int{f.waves.waves[0].PageSize, f.waves.waves[1].PageSize, f.waves.waves[2].PageSize})
}

func TestRunOnceEmptyInput(t *testing.T) {
	f := newFixture(t, testutil.NewFakeLedger(), 4, 10, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Empty(t, res.Failures)
	assert.Zero(t, res.Pages)
	assert.Equal(t, 1, f.ledger.FetchCalls())
	assert.Empty(t, f.waves.waves)
}

func TestRunOnceKeepsDuplicatesTogether(t *testing.T) {
	ledger := testutil.NewFakeLedger(101, 102, 102, 103, 104, 105)
	f := newFixture(t, ledger, 2, 6, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 1, ledger.Loads(102), "sub-records of one account are posted once")
	require.Len(t, f.waves.waves, 1)
	assert.Equal(t, 2, f.waves.waves[0].Partitions)
}

func TestRunOnceIsolatesFailingPartition(t *testing.T) {
	ledger := testutil.NewFakeLedger(testutil.Seq(1, 6)...)
	for _, id := range []model.AccountID{1, 2, 3} {
		ledger.BlockParent(id)
	}
	f := newFixture(t, ledger, 2, 6, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	require.Len(t, res.Failures, 3)
	for i, fail := range res.Failures {
		assert.Equal(t, model.AccountID(i+1), fail.AccountID)
		assert.Equal(t, 1, fail.Attempts)
		assert.NotEmpty(t, fail.Reason)
	}
	assert.Equal(t, map[model.AccountID]int{4: 1, 5: 1, 6: 1}, ledger.Postings())
}

func TestRunOnceRetryBound(t *testing.T) {
	ledger := testutil.NewFakeLedger(1, 2)
	lock := exception.NewOptimisticLockingFailureException("store", "version changed", nil)
	ledger.FailApply(1, lock, lock, lock, lock, lock, lock)
	f := newFixture(t, ledger, 2, 10, 1, 2)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)

	assert.False(t, res.Succeeded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, model.AccountID(1), res.Failures[0].AccountID)
	assert.Equal(t, 3, res.Failures[0].Attempts)
	assert.Equal(t, 3, ledger.Loads(1))
	assert.Len(t, f.sleeper.Waits(), 2)
	assert.Equal(t, 1, ledger.Postings()[2])
}

func TestRunOnceFetchErrorIsFatal(t *testing.T) {
	ledger := testutil.NewFakeLedger(testutil.Seq(1, 9)...)
	ledger.FailFetch(1, errors.New("connection refused"))
	f := newFixture(t, ledger, 2, 3, 1, 3)

	_, err := f.coord.RunOnce(context.Background(), ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, ledger.Postings())
	assert.Equal(t, 1, ledger.FetchCalls())
}

func TestRunOncePrefetchErrorAbortsAfterWave(t *testing.T) {
	ledger := testutil.NewFakeLedger(testutil.Seq(1, 9)...)
	ledger.FailFetch(2, errors.New("connection reset"))
	f := newFixture(t, ledger, 2, 3, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.Error(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.Len(t, ledger.Postings(), 3, "the wave in flight completes")
	assert.Equal(t, 2, ledger.FetchCalls())
}

func TestRunOnceRejectsCursorRegression(t *testing.T) {
	ledger := testutil.NewFakeLedger()
	ledger.ServePages(model.Page{1, 2, 3}, model.Page{3, 4, 5})
	f := newFixture(t, ledger, 2, 3, 1, 3)

	_, err := f.coord.RunOnce(context.Background(), ec)
	require.Error(t, err)
}

func TestRunOncePrefetchOverlapsWorkers(t *testing.T) {
	ledger := testutil.NewFakeLedger(testutil.Seq(1, 4)...)
	overlapped := make(chan bool, 1)
	ledger.OnApply(func(id model.AccountID) {
		if id != 1 {
			return
		}
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if ledger.FetchCalls() >= 2 {
				overlapped <- true
				return
			}
			time.Sleep(time.Millisecond)
		}
		overlapped <- false
	})
	f := newFixture(t, ledger, 1, 2, 1, 3)

	res, err := f.coord.RunOnce(context.Background(), ec)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.True(t, <-overlapped, "next page fetched while the first wave was running")
}

func TestRunOnceHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newFixture(t, testutil.NewFakeLedger(1, 2, 3), 2, 3, 1, 3)

	_, err := f.coord.RunOnce(ctx, ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.ledger.FetchCalls())
}

func TestRunOnceStopDuringLastWave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger := testutil.NewFakeLedger(testutil.Seq(1, 6)...)
	ledger.OnApply(func(id model.AccountID) {
		if id == 1 {
			cancel()
		}
	})
	f := newFixture(t, ledger, 1, 6, 1, 3)

	res, err := f.coord.RunOnce(ctx, ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "run interrupted")

	assert.Equal(t, map[model.AccountID]int{1: 1}, ledger.Postings(), "no account is started after the stop")
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, res.Failures)
	assert.Len(t, f.waves.waves, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "FETCHING", runner.StateFetching.String())
	assert.Equal(t, "DRAINING_QUEUE", runner.StateDrainingQueue.String())
	assert.Equal(t, "DONE", runner.StateDone.String())
}
