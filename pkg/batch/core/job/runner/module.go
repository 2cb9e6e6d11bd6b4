package runner

import (
	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/partition"
	"go.uber.org/fx"
)

// RunCoordinatorParams defines dependencies for RunCoordinator.
type RunCoordinatorParams struct {
	fx.In
	Config         *config.BatchConfig
	Fetcher        port.CursorFetcher
	Executor       partition.UnitExecutor
	Pool           *partition.Pool
	Listeners      []port.RunListener `group:"runListeners"`
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
}

// NewRunCoordinatorProvider provides the RunCoordinator.
func NewRunCoordinatorProvider(p RunCoordinatorParams) *RunCoordinator {
	return NewRunCoordinator(p.Config, p.Fetcher, p.Executor, p.Pool, p.Listeners, p.MetricRecorder, p.Tracer)
}

// Module provides the RunCoordinator.
var Module = fx.Options(
	fx.Provide(NewRunCoordinatorProvider),
)
