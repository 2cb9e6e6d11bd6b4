package tracing_test

import (
	"context"
	"testing"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/listener/tracing"

	"github.com/stretchr/testify/mock"
)

type mockTracer struct {
	mock.Mock
}

func (m *mockTracer) StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func()) {
	m.Called(execution.ID)
	return ctx, func() {}
}

func (m *mockTracer) StartWaveSpan(ctx context.Context, wave int, pageSize int) (context.Context, func()) {
	m.Called(wave, pageSize)
	return ctx, func() {}
}

func (m *mockTracer) RecordError(ctx context.Context, module string, err error) {
	m.Called(module, err.Error())
}

func (m *mockTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	m.Called(name, attributes)
}

func TestTracingRunListenerRecordsLifecycleEvents(t *testing.T) {
	tracer := &mockTracer{}
	tracer.On("RecordEvent", "run_started", mock.Anything).Once()
	tracer.On("RecordEvent", "run_finished", map[string]interface{}{
		"status":    "COMPLETED",
		"pages":     2,
		"processed": 10,
		"failures":  0,
	}).Once()

	l := tracing.NewTracingRunListener(tracer)
	execution := &model.RunExecution{ID: "run-1", Status: model.BatchStatusStarted}
	l.BeforeRun(context.Background(), execution)
	execution.Status = model.BatchStatusCompleted
	execution.Pages = 2
	execution.Processed = 10
	l.AfterRun(context.Background(), execution)

	tracer.AssertExpectations(t)
	tracer.AssertNotCalled(t, "RecordError", mock.Anything, mock.Anything)
}

func TestTracingRunListenerRecordsErrorForFailedRun(t *testing.T) {
	tracer := &mockTracer{}
	tracer.On("RecordEvent", "run_finished", mock.Anything).Once()
	tracer.On("RecordError", "run", "1 account(s) failed").Once()

	l := tracing.NewTracingRunListener(tracer)
	l.AfterRun(context.Background(), &model.RunExecution{
		ID:          "run-2",
		Status:      model.BatchStatusFailed,
		ExitMessage: "1 account(s) failed",
		Failures:    []model.Failure{{AccountID: 3, Reason: "boom", Attempts: 1}},
	})

	tracer.AssertExpectations(t)
}
