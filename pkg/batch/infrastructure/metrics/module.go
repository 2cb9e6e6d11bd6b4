package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
)

// Module provides the PrometheusRecorder and the OpenTelemetryTracer.
// The concrete *PrometheusRecorder is also provided so the registry can be exposed over HTTP.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(func(r *PrometheusRecorder) metrics.MetricRecorder { return r }),
	fx.Provide(func() trace.TracerProvider { return otel.GetTracerProvider() }),
	fx.Provide(fx.Annotate(
		NewOpenTelemetryTracer,
		fx.As(new(metrics.Tracer)),
	)),
)
