package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Run Metrics
	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec
	runFailedAccounts  *prometheus.GaugeVec

	// Page and Wave Metrics
	pageFetchCounter    *prometheus.CounterVec
	pageSizeHistogram   *prometheus.HistogramVec
	waveDurationSeconds *prometheus.HistogramVec
	wavePartitions      *prometheus.HistogramVec

	// Unit Metrics
	unitCounter      *prometheus.CounterVec
	unitAttempts     *prometheus.HistogramVec
	unitRetryCounter *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_batch_run_duration_seconds",
			Help:    "Duration of account batch runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"operation", "status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_batch_run_status_total",
			Help: "Total number of account batch runs by status.",
		}, []string{"operation", "status"}),
		runFailedAccounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_batch_run_failed_accounts",
			Help: "Number of accounts that failed in the latest run.",
		}, []string{"operation", "tenant"}),
		pageFetchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_batch_page_fetch_total",
			Help: "Total cursor fetches by source.",
		}, []string{"operation", "source"}),
		pageSizeHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_batch_page_size",
			Help:    "Number of identifiers returned per cursor fetch.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"operation"}),
		waveDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_batch_wave_duration_seconds",
			Help:    "Duration of a single wave from dispatch to completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		wavePartitions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_batch_wave_partitions",
			Help:    "Number of non-empty partitions dispatched per wave.",
			Buckets: prometheus.LinearBuckets(1, 1, 16),
		}, []string{"operation"}),
		unitCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_batch_unit_total",
			Help: "Total units of work by outcome.",
		}, []string{"operation", "outcome"}),
		unitAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_batch_unit_attempts",
			Help:    "Number of attempts needed per unit of work.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}, []string{"operation", "outcome"}),
		unitRetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_batch_unit_retry_total",
			Help: "Total retries of units of work by reason.",
		}, []string{"operation", "reason"}),
	}

	registry.MustRegister(
		r.runDurationSeconds,
		r.runStatusCounter,
		r.runFailedAccounts,
		r.pageFetchCounter,
		r.pageSizeHistogram,
		r.waveDurationSeconds,
		r.wavePartitions,
		r.unitCounter,
		r.unitAttempts,
		r.unitRetryCounter,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordRunStart records the start of a run.
func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, execution *model.RunExecution) {
	r.runStatusCounter.WithLabelValues(execution.Operation, execution.Status.String()).Inc()
	logger.Debugf("Metrics: Run '%s' (%s) started.", execution.ID, execution.Operation)
}

// RecordRunEnd records the end of a run.
func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, execution *model.RunExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.Duration().Seconds()
	r.runDurationSeconds.WithLabelValues(execution.Operation, execution.Status.String()).Observe(duration)
	r.runStatusCounter.WithLabelValues(execution.Operation, execution.Status.String()).Inc()
	r.runFailedAccounts.WithLabelValues(execution.Operation, execution.TenantID).Set(float64(len(execution.Failures)))
	logger.Debugf("Metrics: Run '%s' ended. Duration: %.3fs", execution.ID, duration)
}

// RecordPageFetched records one cursor fetch.
func (r *PrometheusRecorder) RecordPageFetched(ctx context.Context, operation string, size int, prefetched bool) {
	source := "sync"
	if prefetched {
		source = "prefetch"
	}
	r.pageFetchCounter.WithLabelValues(operation, source).Inc()
	r.pageSizeHistogram.WithLabelValues(operation).Observe(float64(size))
}

// RecordWave records a completed wave.
func (r *PrometheusRecorder) RecordWave(ctx context.Context, operation string, partitions int, duration time.Duration) {
	r.waveDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
	r.wavePartitions.WithLabelValues(operation).Observe(float64(partitions))
}

// RecordUnit records the final outcome of one unit of work.
func (r *PrometheusRecorder) RecordUnit(ctx context.Context, operation string, outcome model.Outcome, attempts int) {
	r.unitCounter.WithLabelValues(operation, outcome.String()).Inc()
	r.unitAttempts.WithLabelValues(operation, outcome.String()).Observe(float64(attempts))
}

// RecordRetry records a retry caused by a transient failure.
func (r *PrometheusRecorder) RecordRetry(ctx context.Context, operation string, reason string) {
	r.unitRetryCounter.WithLabelValues(operation, reason).Inc()
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
