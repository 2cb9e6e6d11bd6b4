package report_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage"
	localstorage "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/listener/report"
)

var businessDate = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

func newConfig(baseDir string) *config.Config {
	cfg := config.NewConfig()
	cfg.Ledger.Report.StorageRef = "reports"
	cfg.Ledger.StorageConfigs = map[string]interface{}{
		"reports": map[string]interface{}{"type": "local", "base_dir": baseDir},
	}
	return cfg
}

func failedExecution() *model.RunExecution {
	execution := model.NewRunExecution("run-42", "interest_posting", model.NewExecutionContext("run-42", "acme", businessDate))
	execution.MarkAsStarted()
	execution.MarkAsFinished(model.RunResult{
		Pages:     2,
		Processed: 8,
		Failures: []model.Failure{
			{AccountID: 3, Attempts: 4, Reason: "deadlock detected"},
			{AccountID: 7, Attempts: 1, Reason: "account 7 is frozen"},
		},
	}, nil)
	return execution
}

func readReport(t *testing.T, path string) []report.FailureRecord {
	t.Helper()
	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(report.FailureRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]report.FailureRecord, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestAfterRunWritesFailureReport(t *testing.T) {
	baseDir := t.TempDir()
	cfg := newConfig(baseDir)
	resolver := storage.NewResolver(cfg, localstorage.NewLocalProvider(cfg))
	listener := report.NewRunReportListener(cfg, resolver)

	execution := failedExecution()
	listener.AfterRun(context.Background(), execution)

	objectName := "reports/interest_posting/dt=2026-03-31/run-42.parquet"
	assert.Equal(t, objectName, report.ObjectName(cfg.Ledger.Report.OutputBaseDir, execution))

	rows := readReport(t, filepath.Join(baseDir, filepath.FromSlash(objectName)))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0].AccountID)
	assert.Equal(t, int32(4), rows[0].Attempts)
	assert.Equal(t, "deadlock detected", rows[0].Reason)
	assert.Equal(t, "acme", rows[1].TenantID)
	assert.Equal(t, "2026-03-31", rows[1].BusinessDate)
	assert.Equal(t, execution.EndTime.UnixMilli(), rows[1].FinishedAt)
}

func TestAfterRunSkipsRunsWithoutFailures(t *testing.T) {
	baseDir := t.TempDir()
	cfg := newConfig(baseDir)
	resolver := storage.NewResolver(cfg, localstorage.NewLocalProvider(cfg))
	listener := report.NewRunReportListener(cfg, resolver)

	execution := model.NewRunExecution("run-1", "interest_posting", model.NewExecutionContext("run-1", "acme", businessDate))
	execution.MarkAsFinished(model.RunResult{Succeeded: true, Processed: 3}, nil)
	listener.AfterRun(context.Background(), execution)

	conn, err := resolver.ResolveStorageConnection(context.Background(), "reports")
	require.NoError(t, err)
	var objects []string
	require.NoError(t, conn.ListObjects(context.Background(), "", "", func(name string) error {
		objects = append(objects, name)
		return nil
	}))
	assert.Empty(t, objects)
}

type failingResolver struct{}

func (failingResolver) ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error) {
	return nil, errors.New("bucket unavailable")
}

func TestExportErrors(t *testing.T) {
	cfg := newConfig(t.TempDir())
	listener := report.NewRunReportListener(cfg, failingResolver{})

	_, err := listener.Export(context.Background(), failedExecution())
	assert.ErrorContains(t, err, "bucket unavailable")

	// AfterRun only logs.
	assert.NotPanics(t, func() { listener.AfterRun(context.Background(), failedExecution()) })

	cfg.Ledger.Report.Compression = "LZ4_RAW"
	listener = report.NewRunReportListener(cfg, failingResolver{})
	_, err = listener.Export(context.Background(), failedExecution())
	assert.ErrorContains(t, err, "unsupported compression")
}

func TestDisabledWithoutStorageRef(t *testing.T) {
	cfg := config.NewConfig()
	listener := report.NewRunReportListener(cfg, failingResolver{})
	assert.NotPanics(t, func() { listener.AfterRun(context.Background(), failedExecution()) })
}
