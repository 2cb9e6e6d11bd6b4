package usecase

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/job/runner"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
)

// RunLauncherParams defines dependencies for SimpleRunLauncher.
type RunLauncherParams struct {
	fx.In
	Config      *config.Config
	Repository  repository.RunRepository
	Coordinator *runner.RunCoordinator
	Listeners   []port.RunListener `group:"runListeners"`
	Tracer      metrics.Tracer
}

// NewSimpleRunLauncherProvider provides the SimpleRunLauncher.
func NewSimpleRunLauncherProvider(p RunLauncherParams) *SimpleRunLauncher {
	return NewSimpleRunLauncher(p.Config, p.Repository, p.Coordinator, p.Listeners, p.Tracer)
}

// Module is the Fx module for RunLauncher, RunOperator, and RunExplorer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewSimpleRunExplorer,
		fx.As(new(RunExplorer)),
	)),
	fx.Provide(fx.Annotate(
		NewDefaultRunOperator,
		fx.As(new(RunOperator)),
	)),
	fx.Provide(NewSimpleRunLauncherProvider),
	fx.Provide(func(launcher *SimpleRunLauncher) RunLauncher { return launcher }),
)
