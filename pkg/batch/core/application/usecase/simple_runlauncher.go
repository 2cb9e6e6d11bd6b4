package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

const launcherModule = "run_launcher"

// SimpleRunLauncher implements RunLauncher for local, synchronous execution.
type SimpleRunLauncher struct {
	cfg           *config.Config
	runRepository repository.RunRepository
	coordinator   Coordinator
	listeners     []port.RunListener
	tracer        metrics.Tracer
	now           func() time.Time

	// launchMu serializes the concurrent-run check with the initial save.
	launchMu sync.Mutex
	// activeRunCancellations holds the cancel functions of runs in progress.
	activeRunCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

// NewSimpleRunLauncher creates a new SimpleRunLauncher.
func NewSimpleRunLauncher(
	cfg *config.Config,
	repo repository.RunRepository,
	coordinator Coordinator,
	listeners []port.RunListener,
	tracer metrics.Tracer,
) *SimpleRunLauncher {
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleRunLauncher{
		cfg:                    cfg,
		runRepository:          repo,
		coordinator:            coordinator,
		listeners:              listeners,
		tracer:                 tracer,
		now:                    time.Now,
		activeRunCancellations: make(map[string]context.CancelFunc),
	}
}

// RegisterCancelFunc registers the cancel function for a run in progress.
func (l *SimpleRunLauncher) RegisterCancelFunc(executionID string, cancelFunc context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeRunCancellations[executionID] = cancelFunc
	logger.Debugf("Registered CancelFunc for RunExecution (ID: %s).", executionID)
}

// UnregisterCancelFunc unregisters the cancel function of a run.
func (l *SimpleRunLauncher) UnregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.activeRunCancellations[executionID]; ok {
		delete(l.activeRunCancellations, executionID)
		logger.Debugf("Unregistered CancelFunc for RunExecution (ID: %s).", executionID)
	}
}

// GetCancelFunc retrieves the cancel function for the specified RunExecution ID.
func (l *SimpleRunLauncher) GetCancelFunc(executionID string) (context.CancelFunc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancelFunc, ok := l.activeRunCancellations[executionID]
	return cancelFunc, ok
}

// Launch runs the configured operation to completion.
func (l *SimpleRunLauncher) Launch(ctx context.Context, businessDate time.Time) (*model.RunExecution, error) {
	batch := l.cfg.Ledger.Batch
	if businessDate.IsZero() {
		var err error
		businessDate, err = l.cfg.BusinessDate(l.now())
		if err != nil {
			return nil, exception.NewBatchError(launcherModule, "Failed to resolve the business date", err, false)
		}
	}
	ec := model.NewExecutionContext(uuid.NewString(), batch.TenantID, businessDate)
	execution := model.NewRunExecution(ec.RunID(), batch.Operation, ec)
	logger.Infof("Launching '%s' for tenant '%s' on %s (Execution ID: %s).",
		batch.Operation, ec.TenantID(), ec.BusinessDate().Format(time.DateOnly), execution.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := l.start(runCtx, execution, cancel); err != nil {
		return nil, err
	}
	defer l.UnregisterCancelFunc(execution.ID)

	spanCtx, endSpan := l.tracer.StartRunSpan(runCtx, execution)
	defer endSpan()

	for _, listener := range l.listeners {
		listener.BeforeRun(spanCtx, execution)
	}

	result, runErr := l.coordinator.RunOnce(spanCtx, ec)
	execution.MarkAsFinished(result, runErr)

	// The history must be finalized even when the run was cancelled.
	updateErr := l.runRepository.UpdateRunExecution(context.WithoutCancel(ctx), execution)
	if updateErr != nil {
		logger.Errorf("Failed to persist the final state of RunExecution (ID: %s): %v", execution.ID, updateErr)
	}

	for _, listener := range l.listeners {
		listener.AfterRun(spanCtx, execution)
	}

	if runErr != nil {
		return execution, runErr
	}
	if updateErr != nil {
		return execution, exception.NewBatchError(launcherModule, "Failed to update RunExecution", updateErr, false)
	}
	return execution, nil
}

// start rejects a launch while another run of the same operation and tenant is in progress in this
// process, abandons one left unfinished by a previous process, and saves the new execution.
func (l *SimpleRunLauncher) start(ctx context.Context, execution *model.RunExecution, cancel context.CancelFunc) error {
	l.launchMu.Lock()
	defer l.launchMu.Unlock()

	latest, err := l.runRepository.FindLatestRunExecution(ctx, execution.Operation, execution.TenantID)
	if err != nil && !errors.Is(err, repository.ErrRunExecutionNotFound) {
		return exception.NewBatchError(launcherModule, "Failed to search for the latest RunExecution", err, false)
	}
	if latest != nil && !latest.Status.IsFinished() {
		if _, running := l.GetCancelFunc(latest.ID); running {
			err := exception.NewBatchErrorf(launcherModule, "A run of '%s' for tenant '%s' (ID: %s) is already in progress",
				latest.Operation, latest.TenantID, latest.ID)
			logger.Errorf("%v", err)
			return err
		}
		latest.MarkAsAbandoned(fmt.Sprintf("abandoned: superseded by run %s", execution.ID))
		if err := l.runRepository.UpdateRunExecution(ctx, latest); err != nil {
			logger.Warnf("Failed to mark RunExecution (ID: %s) as abandoned: %v", latest.ID, err)
		} else {
			logger.Warnf("RunExecution (ID: %s) was left %s by a previous process and has been marked FAILED.", latest.ID, model.BatchStatusStarted)
		}
	}

	execution.MarkAsStarted()
	if err := l.runRepository.SaveRunExecution(ctx, execution); err != nil {
		logger.Errorf("Failed to persist RunExecution (ID: %s) initially: %v", execution.ID, err)
		return exception.NewBatchError(launcherModule, "Failed to save RunExecution initially", err, false)
	}
	l.RegisterCancelFunc(execution.ID, cancel)
	logger.Debugf("Initially saved RunExecution (ID: %s) to RunRepository (Status: %s).", execution.ID, execution.Status)
	return nil
}

var _ RunLauncher = (*SimpleRunLauncher)(nil)
