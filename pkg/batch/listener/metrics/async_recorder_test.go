package metrics_test

import (
	"context"
	"testing"
	"time"

	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	listenermetrics "github.com/tigerroll/ledgerbatch/pkg/batch/listener/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordRunStart(ctx context.Context, execution *model.RunExecution) {
	m.Called(execution.ID, execution.Status)
}

func (m *mockRecorder) RecordRunEnd(ctx context.Context, execution *model.RunExecution) {
	m.Called(execution.ID, execution.Status)
}

func (m *mockRecorder) RecordPageFetched(ctx context.Context, operation string, size int, prefetched bool) {
	m.Called(operation, size, prefetched)
}

func (m *mockRecorder) RecordWave(ctx context.Context, operation string, partitions int, duration time.Duration) {
	m.Called(operation, partitions, duration)
}

func (m *mockRecorder) RecordUnit(ctx context.Context, operation string, outcome model.Outcome, attempts int) {
	m.Called(operation, outcome, attempts)
}

func (m *mockRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	m.Called(operation, reason)
}

func TestAsyncMetricRecorderForwardsEveryEventBeforeClose(t *testing.T) {
	inner := &mockRecorder{}
	inner.On("RecordRunStart", "run-1", model.BatchStatusStarted).Once()
	inner.On("RecordPageFetched", "interest_posting", 500, true).Once()
	inner.On("RecordWave", "interest_posting", 4, time.Second).Once()
	inner.On("RecordUnit", "interest_posting", model.OutcomeFailure, 4).Once()
	inner.On("RecordRetry", "interest_posting", "OptimisticLockingFailure").Once()
	inner.On("RecordRunEnd", "run-1", model.BatchStatusFailed).Once()

	r := listenermetrics.NewAsyncMetricRecorder(16, inner)
	ctx := context.Background()
	execution := &model.RunExecution{ID: "run-1", Status: model.BatchStatusStarted}

	r.RecordRunStart(ctx, execution)
	// The queued start event must not observe later mutations.
	execution.Status = model.BatchStatusFailed
	r.RecordPageFetched(ctx, "interest_posting", 500, true)
	r.RecordWave(ctx, "interest_posting", 4, time.Second)
	r.RecordUnit(ctx, "interest_posting", model.OutcomeFailure, 4)
	r.RecordRetry(ctx, "interest_posting", "OptimisticLockingFailure")
	r.RecordRunEnd(ctx, execution)

	r.Close()
	inner.AssertExpectations(t)

	assert.NotPanics(t, r.Close)
}

func TestAsyncMetricRecorderKeepsContextValuesAfterCancel(t *testing.T) {
	type key struct{}
	got := make(chan interface{}, 1)
	inner := &ctxRecorder{mockRecorder: &mockRecorder{}, seen: got, key: key{}}

	r := listenermetrics.NewAsyncMetricRecorder(0, inner)
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "span"))
	cancel()
	r.RecordRetry(ctx, "interest_posting", "Deadlock")
	r.Close()

	select {
	case v := <-got:
		assert.Equal(t, "span", v)
	default:
		t.Fatal("retry was not recorded")
	}
}

type ctxRecorder struct {
	*mockRecorder
	seen chan interface{}
	key  interface{}
}

func (c *ctxRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	if ctx.Err() == nil {
		c.seen <- ctx.Value(c.key)
	}
}

func TestAsyncMetricRecorderWaitsForRoomInsteadOfDropping(t *testing.T) {
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	inner := &mockRecorder{}
	inner.On("RecordUnit", "interest_posting", model.OutcomeSuccess, 1).Run(func(mock.Arguments) {
		started <- struct{}{}
		<-release
	})

	r := listenermetrics.NewAsyncMetricRecorder(1, inner)
	ctx := context.Background()
	r.RecordUnit(ctx, "interest_posting", model.OutcomeSuccess, 1)
	<-started

	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for i := 0; i < 4; i++ {
			r.RecordUnit(ctx, "interest_posting", model.OutcomeSuccess, 1)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-sent
	r.Close()

	inner.AssertNumberOfCalls(t, "RecordUnit", 5)
}

func TestAsyncMetricRecorderDropsAfterSendTimeout(t *testing.T) {
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	inner := &mockRecorder{}
	inner.On("RecordUnit", "interest_posting", model.OutcomeSuccess, 1).Run(func(mock.Arguments) {
		started <- struct{}{}
		<-release
	})

	r := listenermetrics.NewAsyncMetricRecorder(1, inner)
	r.SetSendTimeout(10 * time.Millisecond)
	ctx := context.Background()
	r.RecordUnit(ctx, "interest_posting", model.OutcomeSuccess, 1)
	<-started

	r.RecordUnit(ctx, "interest_posting", model.OutcomeSuccess, 1) // queued
	r.RecordUnit(ctx, "interest_posting", model.OutcomeSuccess, 1) // dropped after the timeout
	close(release)
	r.Close()

	inner.AssertNumberOfCalls(t, "RecordUnit", 2)
}

func TestBufferSizeCoversOnePage(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Ledger.Metrics.AsyncBufferSize = 0
	cfg.Ledger.Batch.PageSize = 500
	assert.Equal(t, 1000, listenermetrics.BufferSize(cfg))

	cfg.Ledger.Batch.PageSize = 10
	assert.Equal(t, listenermetrics.DefaultAsyncBufferSize, listenermetrics.BufferSize(cfg))

	cfg.Ledger.Metrics.AsyncBufferSize = 5000
	assert.Equal(t, 5000, listenermetrics.BufferSize(cfg))
}
