package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// startTelemetry exposes the Prometheus registry on metrics.listen_address and installs an OTLP/gRPC
// trace exporter when tracing.otlp_endpoint is set.
func startTelemetry(lc fx.Lifecycle, cfg *config.Config, recorder *metrics.PrometheusRecorder) error {
	if addr := cfg.Ledger.Metrics.ListenAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(recorder.GetRegistry(), promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Errorf("Metrics endpoint on %s failed: %v", addr, err)
					}
				}()
				logger.Infof("Metrics endpoint listening on %s/metrics.", addr)
				return nil
			},
			OnStop: server.Shutdown,
		})
	}

	tracing := cfg.Ledger.Tracing
	if tracing.OTLPEndpoint == "" {
		return nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tracing.OTLPEndpoint)}
	if tracing.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", tracing.ServiceName))),
	)
	otel.SetTracerProvider(tp)
	logger.Infof("Exporting traces to %s.", tracing.OTLPEndpoint)

	lc.Append(fx.StopHook(tp.Shutdown))
	return nil
}
