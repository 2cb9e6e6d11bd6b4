// Package report exports the accounts a run could not process as a Parquet file to object storage.
package report

import (
	"context"
	"path"
	"time"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

const reportModule = "run_report"

// RunReportListener writes <output_base_dir>/<operation>/dt=<business date>/<run id>.parquet with one
// row per failed account once a run finishes. Runs without failures produce no file.
type RunReportListener struct {
	cfg      config.ReportConfig
	resolver storage.StorageConnectionResolver
}

// NewRunReportListener creates a RunReportListener. An empty report.storage_ref disables the export.
func NewRunReportListener(cfg *config.Config, resolver storage.StorageConnectionResolver) *RunReportListener {
	return &RunReportListener{cfg: cfg.Ledger.Report, resolver: resolver}
}

func (l *RunReportListener) BeforeRun(ctx context.Context, execution *model.RunExecution) {}

func (l *RunReportListener) AfterWave(ctx context.Context, ec model.ExecutionContext, wave port.WaveSummary) {
}

// AfterRun exports the failures. Export errors are logged and never change the run status.
func (l *RunReportListener) AfterRun(ctx context.Context, execution *model.RunExecution) {
	if l.cfg.StorageRef == "" || len(execution.Failures) == 0 {
		return
	}
	objectName, err := l.Export(context.WithoutCancel(ctx), execution)
	if err != nil {
		logger.Errorf("Run report for run %s could not be written: %v", execution.ID, err)
		return
	}
	logger.Infof("Run report with %d failure(s) written to %s/%s.", len(execution.Failures), l.cfg.StorageRef, objectName)
}

// Export uploads the failure report of execution and returns its object name.
func (l *RunReportListener) Export(ctx context.Context, execution *model.RunExecution) (string, error) {
	buf, err := encode(Records(execution), l.cfg.Compression)
	if err != nil {
		return "", exception.NewBatchError(reportModule, "encode run report", err, false)
	}

	conn, err := l.resolver.ResolveStorageConnection(ctx, l.cfg.StorageRef)
	if err != nil {
		return "", exception.NewBatchError(reportModule, "resolve report storage", err, false)
	}

	objectName := ObjectName(l.cfg.OutputBaseDir, execution)
	if err := conn.Upload(ctx, "", objectName, buf, "application/vnd.apache.parquet"); err != nil {
		return "", exception.NewBatchErrorf(reportModule, "upload %s", objectName, err)
	}
	return objectName, nil
}

// ObjectName returns the Hive-style object name of the report of execution.
func ObjectName(baseDir string, execution *model.RunExecution) string {
	return path.Join(baseDir, execution.Operation, "dt="+execution.BusinessDate.Format(time.DateOnly), execution.ID+".parquet")
}

// Records converts the failures of execution into report rows.
func Records(execution *model.RunExecution) []FailureRecord {
	var finishedAt int64
	if execution.EndTime != nil {
		finishedAt = execution.EndTime.UnixMilli()
	}
	records := make([]FailureRecord, 0, len(execution.Failures))
	for _, f := range execution.Failures {
		records = append(records, FailureRecord{
			RunID:        execution.ID,
			Operation:    execution.Operation,
			TenantID:     execution.TenantID,
			BusinessDate: execution.BusinessDate.Format(time.DateOnly),
			AccountID:    int64(f.AccountID),
			Attempts:     int32(f.Attempts),
			Reason:       f.Reason,
			FinishedAt:   finishedAt,
		})
	}
	return records
}

var _ port.RunListener = (*RunReportListener)(nil)
