package retry

import (
	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/partition"
	"go.uber.org/fx"
)

// ExecutorParams defines dependencies for Executor.
type ExecutorParams struct {
	fx.In
	Config         *config.BatchConfig
	Store          port.AccountStore
	MetricRecorder metrics.MetricRecorder
}

// NewExecutorProvider builds the Executor from the batch retry settings.
func NewExecutorProvider(p ExecutorParams) *Executor {
	policy := NewRetryPolicy(p.Config.Retry.MaxRetries, p.Config.Retry.MaxBackoffSeconds)
	return NewExecutor(p.Config.Operation, p.Store, policy, WithMetricRecorder(p.MetricRecorder))
}

// Module provides the retry Executor as the partition.UnitExecutor.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewExecutorProvider,
		fx.As(new(partition.UnitExecutor)),
	)),
)
