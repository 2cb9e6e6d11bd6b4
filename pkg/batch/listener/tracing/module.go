package tracing

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
)

// Module provides the tracing run listener.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewTracingRunListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"runListeners"`),
	)),
)
