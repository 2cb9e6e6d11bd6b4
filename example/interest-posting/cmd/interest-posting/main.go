package main

import (
	"os"

	_ "embed"

	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// main is the entry point of the application. It runs the configured operation once and exits
// with status 1 when the run did not complete.
func main() {
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	fxApp := fx.New(GetApplicationOptions(envFilePath, embeddedConfig)...)
	fxApp.Run()
	if fxApp.Err() != nil {
		logger.Fatalf("Application run failed: %v", fxApp.Err())
	}
}
