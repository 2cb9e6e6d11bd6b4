// Package retry applies one unit of work with bounded, jittered retries on transient failures.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

const moduleName = "retry"

// TimerSleeper sleeps on a timer and returns early when the context is done.
type TimerSleeper struct{}

// Sleep implements port.Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor runs the posting operation for one account at a time.
// It is stateless between calls and safe for concurrent use by several workers.
type Executor struct {
	store     port.AccountStore
	policy    RetryPolicy
	sleeper   port.Sleeper
	recorder  metrics.MetricRecorder
	intN      func(n int) int
	operation string
}

// Option customises an Executor.
type Option func(*Executor)

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s port.Sleeper) Option {
	return func(e *Executor) { e.sleeper = s }
}

// WithRand replaces the jitter source. intN must return a value in [0, n).
func WithRand(intN func(n int) int) Option {
	return func(e *Executor) { e.intN = intN }
}

// WithMetricRecorder sets the recorder for retries and unit outcomes.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// NewExecutor creates an Executor for the given operation name.
func NewExecutor(operation string, store port.AccountStore, policy RetryPolicy, opts ...Option) *Executor {
	e := &Executor{
		store:     store,
		policy:    policy,
		sleeper:   TimerSleeper{},
		recorder:  metrics.NewNoOpMetricRecorder(),
		intN:      rand.IntN,
		operation: operation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the retry policy in use.
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Execute processes one unit until it succeeds or fails terminally. It never panics and
// never returns an error: every failure is reported in the Result.
func (e *Executor) Execute(ctx context.Context, ec model.ExecutionContext, unit model.Unit) model.Result {
	state := State{Attempts: 1}
	for {
		err := e.attempt(ctx, ec, unit.AccountID)
		step := e.policy.Next(state, err)

		switch step.Decision {
		case DecisionSuccess:
			return e.finish(ctx, model.Result{AccountID: unit.AccountID, Outcome: model.OutcomeSuccess, Attempts: state.Attempts})

		case DecisionTerminal:
			logger.Warnf("Account %d failed after %d attempt(s): %s", unit.AccountID, state.Attempts, step.Reason)
			return e.finish(ctx, model.Result{
				AccountID: unit.AccountID,
				Outcome:   model.OutcomeFailure,
				Attempts:  state.Attempts,
				Err:       err,
				Reason:    step.Reason,
			})

		case DecisionRetry:
			wait := e.policy.GetBackoffInterval(e.intN)
			e.recorder.RecordRetry(ctx, e.operation, exception.Classify(err).String())
			logger.Debugf("Account %d attempt %d hit %v, retrying in %s.", unit.AccountID, state.Attempts, err, wait)
			if sleepErr := e.sleeper.Sleep(ctx, wait); sleepErr != nil {
				return e.finish(ctx, model.Result{
					AccountID: unit.AccountID,
					Outcome:   model.OutcomeFailure,
					Attempts:  state.Attempts,
					Err:       sleepErr,
					Reason:    "interrupted while waiting to retry: " + exception.ExtractErrorMessage(sleepErr),
				})
			}
			state = step.Next
		}
	}
}

// attempt re-reads the account and applies the posting once. A panic inside the domain layer is
// converted into a domain error so it cannot escape the unit boundary.
func (e *Executor) attempt(ctx context.Context, ec model.ExecutionContext, id model.AccountID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewBatchError(moduleName, fmt.Sprintf("panic while processing account %d: %v", id, r), exception.ErrInvalidState, false)
		}
	}()

	account, err := e.store.LoadAccount(ctx, ec, id)
	if err != nil {
		return err
	}
	eligible, err := e.store.IsEligibleParent(ctx, ec, account)
	if err != nil {
		return err
	}
	if !eligible {
		return exception.NewBatchErrorf(moduleName, "owner of account %d is not active", id, exception.ErrIneligibleParent)
	}
	return e.store.ApplyPosting(ctx, ec, account)
}

func (e *Executor) finish(ctx context.Context, r model.Result) model.Result {
	e.recorder.RecordUnit(ctx, e.operation, r.Outcome, r.Attempts)
	return r
}
