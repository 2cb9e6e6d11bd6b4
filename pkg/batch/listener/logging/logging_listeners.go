package logging

import (
	"context"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// maxLoggedFailures caps the per-account failure lines written after a run.
const maxLoggedFailures = 20

// LoggingRunListener writes the lifecycle of a run to the batch logger.
type LoggingRunListener struct{}

// NewLoggingRunListener creates a new instance of LoggingRunListener.
func NewLoggingRunListener() *LoggingRunListener {
	return &LoggingRunListener{}
}

func (l *LoggingRunListener) BeforeRun(ctx context.Context, execution *model.RunExecution) {
	log := logger.With(map[string]interface{}{
		"run_id":    execution.ID,
		"operation": execution.Operation,
		"tenant_id": execution.TenantID,
	})
	log.Info().
		Str("business_date", execution.BusinessDate.Format(time.DateOnly)).
		Msg("RunListener: BeforeRun")
}

func (l *LoggingRunListener) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
	logger.Debugf("RunListener: AfterWave - RunID: %s, Wave: %d, Page: %d, Partitions: %d, Processed: %d, Failures: %d, Duration: %s",
		ec.RunID(), wave.Number, wave.PageSize, wave.Partitions, wave.Processed, wave.Failures, wave.Duration)
}

func (l *LoggingRunListener) AfterRun(ctx context.Context, execution *model.RunExecution) {
	log := logger.With(map[string]interface{}{
		"run_id":    execution.ID,
		"operation": execution.Operation,
		"tenant_id": execution.TenantID,
	})
	event := log.Info()
	if execution.Status != model.BatchStatusCompleted {
		event = log.Warn()
	}
	event.
		Str("status", execution.Status.String()).
		Int("pages", execution.Pages).
		Int("processed", execution.Processed).
		Int("failures", len(execution.Failures)).
		Dur("duration", execution.Duration()).
		Str("exit_message", execution.ExitMessage).
		Msg("RunListener: AfterRun")

	for i, f := range execution.Failures {
		if i == maxLoggedFailures {
			logger.Warnf("RunListener: %d more failure(s) not shown.", len(execution.Failures)-maxLoggedFailures)
			break
		}
		logger.Warnf("RunListener: account %d failed after %d attempt(s): %s", f.AccountID, f.Attempts, f.Reason)
	}
}

var _ port.RunListener = (*LoggingRunListener)(nil)
