package retry_test

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"

	"github.com/stretchr/testify/assert"
)

func TestPolicyNext(t *testing.T) {
	p := retry.NewRetryPolicy(2, 5)
	transient := exception.ErrDeadlock

	tests := []struct {
		name     string
		attempts int
		err      error
		want     retry.Decision
	}{
		{"success", 1, nil, retry.DecisionSuccess},
		{"domain on first attempt", 1, exception.ErrBusinessRule, retry.DecisionTerminal},
		{"unclassified", 1, errors.New("boom"), retry.DecisionTerminal},
		{"transient first", 1, transient, retry.DecisionRetry},
		{"transient second", 2, transient, retry.DecisionRetry},
		{"transient last", 3, transient, retry.DecisionTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := p.Next(retry.State{Attempts: tt.attempts}, tt.err)
			assert.Equal(t, tt.want, step.Decision)
			if tt.want == retry.DecisionRetry {
				assert.Equal(t, tt.attempts+1, step.Next.Attempts)
			}
			if tt.want == retry.DecisionTerminal {
				assert.NotEmpty(t, step.Reason)
			}
		})
	}
	assert.Equal(t, 3, p.GetMaxAttempts())
}

func TestNewRetryPolicyClamps(t *testing.T) {
	p := retry.NewRetryPolicy(-1, 0)
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 1, p.MaxBackoffSeconds)
}

func TestBackoffIntervalWithinBounds(t *testing.T) {
	p := retry.NewRetryPolicy(3, 4)
	r := rand.New(rand.NewPCG(1, 2))
	seen := map[time.Duration]bool{}
	for i := 0; i < 500; i++ {
		d := p.GetBackoffInterval(r.IntN)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
		seen[d] = true
	}
	assert.Len(t, seen, 4, "every whole second in [1, max] is drawn")
}
