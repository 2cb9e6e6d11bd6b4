package notification

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/ports"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// LogNotifier is a Notifier that only writes the notification to the log.
type LogNotifier struct{}

// NewLogNotifier creates a new instance of LogNotifier.
func NewLogNotifier() *LogNotifier {
	logger.Debugf("Notification: Initializing Log Notifier.")
	return &LogNotifier{}
}

// NotifyRunCompletion logs at INFO for a completed run and at WARN otherwise.
func (n *LogNotifier) NotifyRunCompletion(ctx context.Context, execution *model.RunExecution) {
	message := fmt.Sprintf(
		"Run Notification: %s for tenant '%s' on %s (ID: %s) finished with Status: %s. Duration: %s, Processed: %d, Failures: %d",
		execution.Operation,
		execution.TenantID,
		execution.BusinessDate.Format(time.DateOnly),
		execution.ID,
		execution.Status,
		execution.Duration(),
		execution.Processed,
		len(execution.Failures),
	)

	if execution.Status == model.BatchStatusCompleted {
		logger.Infof("%s", message)
	} else {
		logger.Warnf("%s", message)
	}
}

var _ ports.Notifier = (*LogNotifier)(nil)

// NotificationRunListener forwards the end of a run to a Notifier.
type NotificationRunListener struct {
	notifier ports.Notifier
}

// NewNotificationRunListener creates a new instance of NotificationRunListener.
func NewNotificationRunListener(notifier ports.Notifier) *NotificationRunListener {
	return &NotificationRunListener{notifier: notifier}
}

func (l *NotificationRunListener) BeforeRun(ctx context.Context, execution *model.RunExecution) {}

func (l *NotificationRunListener) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
}

// AfterRun calls the Notifier.
func (l *NotificationRunListener) AfterRun(ctx context.Context, execution *model.RunExecution) {
	l.notifier.NotifyRunCompletion(ctx, execution)
}

var _ port.RunListener = (*NotificationRunListener)(nil)
