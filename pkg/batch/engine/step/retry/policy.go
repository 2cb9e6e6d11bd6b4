package retry

import (
	"fmt"
	"time"

	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
)

// Decision is the outcome of evaluating one attempt.
type Decision int

const (
	// DecisionSuccess means the attempt succeeded and the unit is done.
	DecisionSuccess Decision = iota
	// DecisionRetry means the attempt failed transiently and another attempt is allowed.
	DecisionRetry
	// DecisionTerminal means the unit failed for good.
	DecisionTerminal
)

// String returns the decision label.
func (d Decision) String() string {
	switch d {
	case DecisionSuccess:
		return "success"
	case DecisionRetry:
		return "retry"
	default:
		return "terminal"
	}
}

// RetryPolicy bounds the retries of a single unit of work.
type RetryPolicy struct {
	// MaxRetries is the number of retries allowed after the first attempt.
	MaxRetries int
	// MaxBackoffSeconds is the upper bound of the jittered sleep between attempts.
	MaxBackoffSeconds int
}

// NewRetryPolicy creates a RetryPolicy. Negative retries are clamped to zero and the backoff
// bound to at least one second.
func NewRetryPolicy(maxRetries, maxBackoffSeconds int) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxBackoffSeconds < 1 {
		maxBackoffSeconds = 1
	}
	return RetryPolicy{MaxRetries: maxRetries, MaxBackoffSeconds: maxBackoffSeconds}
}

// GetMaxAttempts returns the total number of attempts including the first one.
func (p RetryPolicy) GetMaxAttempts() int {
	return p.MaxRetries + 1
}

// State is the retry state of one unit: the number of attempts made so far.
type State struct {
	Attempts int
}

// Step is the transition produced by Next.
type Step struct {
	Decision Decision
	// Next is the state to continue from when Decision is DecisionRetry.
	Next State
	// Reason explains a terminal decision.
	Reason string
}

// Next evaluates the error returned by attempt number s.Attempts (1-based) and decides what happens next.
// It is pure: it neither sleeps nor logs.
func (p RetryPolicy) Next(s State, err error) Step {
	if err == nil {
		return Step{Decision: DecisionSuccess, Next: s}
	}
	if !exception.IsTransient(err) {
		return Step{Decision: DecisionTerminal, Next: s, Reason: exception.ExtractErrorMessage(err)}
	}
	if s.Attempts > p.MaxRetries {
		return Step{
			Decision: DecisionTerminal,
			Next:     s,
			Reason:   fmt.Sprintf("retries exhausted after %d attempts: %s", s.Attempts, exception.ExtractErrorMessage(err)),
		}
	}
	return Step{Decision: DecisionRetry, Next: State{Attempts: s.Attempts + 1}}
}

// GetBackoffInterval draws the sleep before the next attempt uniformly from [1, MaxBackoffSeconds] seconds.
// intN must return a value in [0, n).
func (p RetryPolicy) GetBackoffInterval(intN func(n int) int) time.Duration {
	return time.Duration(1+intN(p.MaxBackoffSeconds)) * time.Second
}
