package listener

import (
	"context"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// RunCompletionSignaler is a RunListener that closes a channel when a run completes,
// signaling its completion to external components.
type RunCompletionSignaler struct {
	// RunDoneChan is the channel that will be closed upon run completion.
	RunDoneChan chan struct{}
}

// NewRunCompletionSignaler creates a new instance of RunCompletionSignaler.
func NewRunCompletionSignaler(runDoneChan chan struct{}) *RunCompletionSignaler {
	return &RunCompletionSignaler{RunDoneChan: runDoneChan}
}

func (l *RunCompletionSignaler) BeforeRun(ctx context.Context, execution *model.RunExecution) {}

func (l *RunCompletionSignaler) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
}

// AfterRun closes RunDoneChan unless it is already closed.
func (l *RunCompletionSignaler) AfterRun(ctx context.Context, execution *model.RunExecution) {
	logger.Debugf("RunCompletionSignaler: Run '%s' completed. Closing RunDoneChan.", execution.ID)
	select {
	case <-l.RunDoneChan:
	default:
		close(l.RunDoneChan)
	}
}

var _ port.RunListener = (*RunCompletionSignaler)(nil)
