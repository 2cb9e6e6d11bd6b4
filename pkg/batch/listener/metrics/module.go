package metrics

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
)

// Module provides the metrics run listener.
var Module = fx.Options(
	// The MetricRecorder is provided by core/metrics or infrastructure/metrics and is decorated here
	// to record asynchronously.
	fx.Decorate(NewAsyncMetricRecorderWrapper),

	fx.Provide(fx.Annotate(
		NewMetricsRunListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"runListeners"`),
	)),
)
