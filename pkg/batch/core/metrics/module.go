package metrics

import (
	"go.uber.org/fx"
)

// Module provides the no-op MetricRecorder and Tracer.
// Applications that export metrics use infrastructure/metrics.Module instead of this one.
var Module = fx.Options(
	fx.Provide(NewNoOpMetricRecorder),
	fx.Provide(NewNoOpTracer),
)
