package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/ledgerbatch"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer from the given provider.
// A nil provider falls back to the global one.
func NewOpenTelemetryTracer(tp trace.TracerProvider) *OpenTelemetryTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &OpenTelemetryTracer{tracer: tp.Tracer(instrumentationName)}
}

// StartRunSpan starts a new span for a run.
func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, execution *model.RunExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.run "+execution.Operation, trace.WithAttributes(
		attribute.String("batch.run_id", execution.ID),
		attribute.String("batch.tenant", execution.TenantID),
		attribute.String("batch.business_date", execution.BusinessDate.Format("2006-01-02")),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.status", execution.Status.String()),
			attribute.Int("batch.failures", len(execution.Failures)),
		)
		if execution.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, execution.ExitMessage)
		}
		span.End()
	}
}

// StartWaveSpan starts a new span for a wave.
func (t *OpenTelemetryTracer) StartWaveSpan(ctx context.Context, wave int, pageSize int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("batch.wave %d", wave), trace.WithAttributes(
		attribute.Int("batch.wave", wave),
		attribute.Int("batch.page_size", pageSize),
	))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
