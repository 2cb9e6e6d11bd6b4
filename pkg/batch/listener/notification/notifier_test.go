package notification_test

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/listener/notification"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyRunCompletion(ctx context.Context, execution *model.RunExecution) {
	m.Called(execution.ID)
}

func TestNotificationRunListenerNotifiesAfterRunOnly(t *testing.T) {
	notifier := &mockNotifier{}
	notifier.On("NotifyRunCompletion", "run-1").Once()

	l := notification.NewNotificationRunListener(notifier)
	execution := &model.RunExecution{ID: "run-1"}
	l.BeforeRun(context.Background(), execution)
	l.AfterRun(context.Background(), execution)

	notifier.AssertExpectations(t)
}

func TestLogNotifierLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf, false)
	t.Cleanup(func() { logger.SetOutput(os.Stderr, false) })

	start := time.Date(2026, 3, 31, 1, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	n := notification.NewLogNotifier()

	n.NotifyRunCompletion(context.Background(), &model.RunExecution{
		ID: "ok", Operation: "interest_posting", TenantID: "acme", BusinessDate: start,
		Status: model.BatchStatusCompleted, StartTime: start, EndTime: &end, Processed: 5,
	})
	assert.Contains(t, buf.String(), `"level":"info"`)
	assert.Contains(t, buf.String(), "finished with Status: COMPLETED")
	assert.Contains(t, buf.String(), "Duration: 1m0s")

	buf.Reset()
	n.NotifyRunCompletion(context.Background(), &model.RunExecution{
		ID: "bad", Operation: "interest_posting", TenantID: "acme", BusinessDate: start,
		Status: model.BatchStatusFailed, StartTime: start, EndTime: &end,
	})
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
