package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/tigerroll/ledgerbatch/example/interest-posting/internal/demo"
	gormadapter "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage"
	localstorage "github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage/local"
	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	usecase "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/ledgerbatch/pkg/batch/core/config"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/partition"
	"github.com/tigerroll/ledgerbatch/pkg/batch/engine/step/retry"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/infrastructure/metrics"
	runRepo "github.com/tigerroll/ledgerbatch/pkg/batch/infrastructure/repository/sql"
	batchlistener "github.com/tigerroll/ledgerbatch/pkg/batch/listener"
	"github.com/tigerroll/ledgerbatch/pkg/batch/listener/report"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

// dbProviderModules maps the names accepted in DB_ADAPTERS to their Fx modules.
var dbProviderModules = map[string]fx.Option{
	sqlite.DBType:   sqlite.Module,
	postgres.DBType: postgres.Module,
	mysql.DBType:    mysql.Module,
}

// getDBProviderOptions selects the DB providers named in DB_ADAPTERS (comma separated).
// All of them are installed when the variable is not set.
func getDBProviderOptions() []fx.Option {
	adapters := os.Getenv("DB_ADAPTERS")
	if adapters == "" {
		adapters = "sqlite,postgres,mysql"
	}

	options := make([]fx.Option, 0)
	for _, name := range strings.Split(adapters, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if module, ok := dbProviderModules[name]; ok {
			options = append(options, module)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

// GetApplicationOptions builds the uber-fx options of the application.
func GetApplicationOptions(envFilePath string, embeddedConfig []byte) []fx.Option {
	var options []fx.Option

	options = append(options, fx.Supply(
		config.EmbeddedConfig(embeddedConfig),
		fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
	))
	options = append(options, logger.Module)
	options = append(options, config.Module)
	options = append(options, metrics.Module)
	options = append(options, gormadapter.Module)
	options = append(options, getDBProviderOptions()...)
	options = append(options, migration.Module)
	options = append(options, storage.Module)
	options = append(options, localstorage.Module)
	options = append(options, runRepo.Module)
	options = append(options, partition.Module)
	options = append(options, retry.Module)
	options = append(options, runner.Module)
	options = append(options, batchlistener.Module)
	options = append(options, report.Module)
	options = append(options, usecase.Module)
	options = append(options, fx.Provide(newRunDoneChan))
	options = append(options, fx.Provide(fx.Annotate(
		batchlistener.NewRunCompletionSignaler,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"runListeners"`),
	)))
	options = append(options, fx.Invoke(startTelemetry))
	options = append(options, fx.Invoke(demo.SeedFromEnv))
	options = append(options, fx.Invoke(startRun))

	return options
}

func newRunDoneChan() chan struct{} {
	return make(chan struct{})
}

// startRun launches one run when the application has started and requests shutdown once it is over.
// Stopping the application cancels the run and waits for its history to be finalized.
func startRun(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	launcher usecase.RunLauncher,
	cfg *config.Config,
	runDone chan struct{},
) {
	runCtx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				exitCode := 0
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in run execution: %v", r)
						exitCode = 1
					}
					close(exited)
					logger.Infof("Requesting application shutdown after run completion.")
					if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				logger.Infof("Starting '%s' for tenant '%s'.", cfg.Ledger.Batch.Operation, cfg.Ledger.Batch.TenantID)
				execution, err := launcher.Launch(runCtx, time.Time{})
				if err != nil {
					logger.Errorf("Run failed: %v", err)
					exitCode = 1
					return
				}
				if execution.Status != model.BatchStatusCompleted {
					exitCode = 1
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-runDone:
				logger.Debugf("Run history finalized.")
			case <-exited:
			case <-ctx.Done():
				logger.Warnf("Timed out waiting for the run to stop: %v", ctx.Err())
			}
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}
