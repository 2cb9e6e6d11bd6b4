package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/partition"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ledgerbatch/pkg/batch/infrastructure/repository/inmemory"
	testutil "github.com/tigerroll/ledgerbatch/pkg/batch/test"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var businessDate = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

type coordinatorFunc func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error)

func (f coordinatorFunc) RunOnce(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
	return f(ctx, ec)
}

type lifecycleRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *lifecycleRecorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *lifecycleRecorder) BeforeRun(ctx context.Context, execution *model.RunExecution) {
	r.record("before:" + execution.Status.String())
}

func (r *lifecycleRecorder) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
	r.record("wave")
}

func (r *lifecycleRecorder) AfterRun(ctx context.Context, execution *model.RunExecution) {
	r.record("after:" + execution.Status.String())
}

func newConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Ledger.Batch.TenantID = "acme"
	cfg.Ledger.Batch.BusinessDate = "2026-03-31"
	return cfg
}

func TestLaunchCompletesAndRecordsHistory(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	events := &lifecycleRecorder{}
	var seen model.ExecutionContext
	launcher := usecase.NewSimpleRunLauncher(newConfig(), repo,
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			seen = ec
			return model.RunResult{Succeeded: true, Pages: 2, Processed: 5}, nil
		}), []port.RunListener{events}, nil)

	execution, err := launcher.Launch(context.Background(), time.Time{})
	require.NoError(t, err)

	_, parseErr := uuid.Parse(execution.ID)
	assert.NoError(t, parseErr)
	assert.Equal(t, execution.ID, seen.RunID())
	assert.Equal(t, "acme", seen.TenantID())
	assert.True(t, seen.BusinessDate().Equal(businessDate))
	assert.Equal(t, []string{"before:STARTED", "after:COMPLETED"}, events.events)

	stored, err := repo.FindRunExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Pages)
	assert.Equal(t, 5, stored.Processed)
	assert.Equal(t, 1, stored.Version)
	assert.NotNil(t, stored.EndTime)

	_, ok := launcher.GetCancelFunc(execution.ID)
	assert.False(t, ok)
}

func TestLaunchWithAccountFailuresIsNotAnError(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	launcher := usecase.NewSimpleRunLauncher(newConfig(), repo,
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			return model.RunResult{
				Failures:  []model.Failure{{AccountID: 7, Reason: "rejected", Attempts: 1}},
				Pages:     1,
				Processed: 3,
			}, nil
		}), nil, nil)

	execution, err := launcher.Launch(context.Background(), businessDate)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, execution.Status)
	assert.Equal(t, "1 account(s) failed", execution.ExitMessage)
	require.Len(t, execution.Failures, 1)
	assert.Equal(t, model.AccountID(7), execution.Failures[0].AccountID)
}

func TestLaunchReturnsAbortError(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	events := &lifecycleRecorder{}
	boom := errors.New("cursor fetch failed")
	launcher := usecase.NewSimpleRunLauncher(newConfig(), repo,
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			return model.RunResult{Pages: 1}, boom
		}), []port.RunListener{events}, nil)

	execution, err := launcher.Launch(context.Background(), businessDate)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, model.BatchStatusFailed, execution.Status)
	assert.Equal(t, boom.Error(), execution.ExitMessage)
	assert.Equal(t, []string{"before:STARTED", "after:FAILED"}, events.events)

	stored, err := repo.FindLatestRunExecution(context.Background(), "interest_posting", "acme")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
}

func TestLaunchRejectsConcurrentRunAndStopCancelsIt(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	started := make(chan model.ExecutionContext, 1)
	launcher := usecase.NewSimpleRunLauncher(newConfig(), repo,
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			started <- ec
			<-ctx.Done()
			return model.RunResult{}, ctx.Err()
		}), nil, nil)
	operator := usecase.NewDefaultRunOperator(repo, launcher)

	type launchResult struct {
		execution *model.RunExecution
		err       error
	}
	done := make(chan launchResult, 1)
	go func() {
		execution, err := launcher.Launch(context.Background(), businessDate)
		done <- launchResult{execution, err}
	}()

	ec := <-started
	_, err := launcher.Launch(context.Background(), businessDate)
	assert.ErrorContains(t, err, "already in progress")

	require.NoError(t, operator.Stop(context.Background(), ec.RunID()))

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, context.Canceled)
		assert.Equal(t, model.BatchStatusFailed, res.execution.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	stored, err := repo.FindRunExecutionByID(context.Background(), ec.RunID())
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)

	err = operator.Stop(context.Background(), ec.RunID())
	assert.ErrorContains(t, err, "already in a finished state")
}

func TestLaunchAbandonsRunLeftByPreviousProcess(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	stale := model.NewRunExecution("stale-run", "interest_posting",
		model.NewExecutionContext("stale-run", "acme", businessDate.AddDate(0, 0, -1)))
	stale.MarkAsStarted()
	require.NoError(t, repo.SaveRunExecution(context.Background(), stale))

	launcher := usecase.NewSimpleRunLauncher(newConfig(), repo,
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			return model.RunResult{Succeeded: true}, nil
		}), nil, nil)

	execution, err := launcher.Launch(context.Background(), businessDate)
	require.NoError(t, err)

	stored, err := repo.FindRunExecutionByID(context.Background(), "stale-run")
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
	assert.Contains(t, stored.ExitMessage, execution.ID)
}

func TestLaunchRejectsInvalidBusinessDate(t *testing.T) {
	cfg := newConfig()
	cfg.Ledger.System.Timezone = "Mars/Olympus_Mons"
	launcher := usecase.NewSimpleRunLauncher(cfg, inmemory.NewInMemoryRunRepository(),
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			t.Fatal("coordinator must not run")
			return model.RunResult{}, nil
		}), nil, nil)

	_, err := launcher.Launch(context.Background(), time.Time{})
	assert.ErrorContains(t, err, "business date")
}

func TestLaunchDrivesCoordinatorEndToEnd(t *testing.T) {
	cfg := newConfig()
	cfg.Ledger.Batch.WorkerCount = 2
	cfg.Ledger.Batch.PageSize = 4
	batch := &cfg.Ledger.Batch

	ledger := testutil.NewFakeLedger(testutil.Seq(1, 10)...)
	pool := partition.NewPool(batch.WorkerCount + 1)
	t.Cleanup(pool.Shutdown)
	exec := retry.NewExecutor(batch.Operation, ledger, retry.NewRetryPolicy(batch.Retry.MaxRetries, 1), retry.WithSleeper(&testutil.NoSleep{}))
	events := &lifecycleRecorder{}
	listeners := []port.RunListener{events}
	coord := runner.NewRunCoordinator(batch, ledger, exec, pool, listeners, nil, nil)

	repo := inmemory.NewInMemoryRunRepository()
	launcher := usecase.NewSimpleRunLauncher(cfg, repo, coord, listeners, nil)
	execution, err := launcher.Launch(context.Background(), businessDate)
	require.NoError(t, err)

	assert.Equal(t, model.BatchStatusCompleted, execution.Status)
	assert.Equal(t, 10, execution.Processed)
	assert.Equal(t, 3, execution.Pages)
	assert.Len(t, ledger.Postings(), 10)
	assert.Equal(t, []string{"before:STARTED", "wave", "wave", "wave", "after:COMPLETED"}, events.events)
}

func TestLaunchStoppedDuringLastWaveIsFailed(t *testing.T) {
	cfg := newConfig()
	cfg.Ledger.Batch.WorkerCount = 1
	cfg.Ledger.Batch.PageSize = 6
	batch := &cfg.Ledger.Batch

	ledger := testutil.NewFakeLedger(testutil.Seq(1, 6)...)
	pool := partition.NewPool(batch.WorkerCount + 1)
	t.Cleanup(pool.Shutdown)
	exec := retry.NewExecutor(batch.Operation, ledger, retry.NewRetryPolicy(batch.Retry.MaxRetries, 1), retry.WithSleeper(&testutil.NoSleep{}))
	coord := runner.NewRunCoordinator(batch, ledger, exec, pool, nil, nil, nil)

	repo := inmemory.NewInMemoryRunRepository()
	launcher := usecase.NewSimpleRunLauncher(cfg, repo, coord, nil, nil)
	operator := usecase.NewDefaultRunOperator(repo, launcher)

	stopErr := make(chan error, 1)
	ledger.OnApply(func(id model.AccountID) {
		if id != 1 {
			return
		}
		running, err := repo.FindLatestRunExecution(context.Background(), batch.Operation, batch.TenantID)
		if err != nil {
			stopErr <- err
			return
		}
		stopErr <- operator.Stop(context.Background(), running.ID)
	})

	execution, err := launcher.Launch(context.Background(), businessDate)
	require.NoError(t, <-stopErr)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, model.BatchStatusFailed, execution.Status)
	assert.Contains(t, execution.ExitMessage, "context canceled")
	assert.Empty(t, execution.Failures)
	assert.Equal(t, map[model.AccountID]int{1: 1}, ledger.Postings())

	stored, err := repo.FindRunExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, stored.Status)
}

func TestExplorer(t *testing.T) {
	repo := inmemory.NewInMemoryRunRepository()
	launcher := usecase.NewSimpleRunLauncher(newConfig(), repo,
		coordinatorFunc(func(ctx context.Context, ec model.ExecutionContext) (model.RunResult, error) {
			return model.RunResult{Succeeded: true}, nil
		}), nil, nil)
	execution, err := launcher.Launch(context.Background(), businessDate)
	require.NoError(t, err)

	explorer := usecase.NewSimpleRunExplorer(repo)
	found, err := explorer.GetRunExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, found.Status)

	last, err := explorer.GetLastRunExecution(context.Background(), "interest_posting", "acme")
	require.NoError(t, err)
	assert.Equal(t, execution.ID, last.ID)

	_, err = explorer.GetRunExecution(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrRunExecutionNotFound)

	_, err = explorer.GetLastRunExecution(context.Background(), "interest_posting", "globex")
	assert.ErrorIs(t, err, repository.ErrRunExecutionNotFound)
}
