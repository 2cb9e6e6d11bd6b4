package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// LoadConfig loads defaults, merges the embedded YAML over them and finally applies environment
// overrides. ${VAR} placeholders in the YAML are expanded before it is parsed. Environment variable
// names are derived from the yaml tags, e.g. LEDGER_BATCH_WORKER_COUNT or LEDGER_BATCH_RETRY_MAX_RETRIES.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	expanded, err := NewOsEnvironmentExpander().Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in embedded config", err, false)
	}

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to unmarshal embedded config", err, false)
	}
	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load config from environment variables", err, false)
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads, validates and provides *Config.
// It also applies the configured log level and output format.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, exception.NewBatchError(moduleName, "invalid configuration", err, false)
	}

	logger.SetOutput(os.Stderr, cfg.Ledger.System.Logging.Pretty)
	logger.SetLogLevel(cfg.Ledger.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Ledger.System.Logging.Level)
	return cfg, nil
}

// mergeConfig copies every non-zero value of source over dest.
func mergeConfig(dest, source *Config) {
	d, s := &dest.Ledger, &source.Ledger

	mergeBatchConfig(&d.Batch, &s.Batch)

	if s.System.Timezone != "" {
		d.System.Timezone = s.System.Timezone
	}
	if s.System.Logging.Level != "" {
		d.System.Logging.Level = s.System.Logging.Level
	}
	if s.System.Logging.Pretty {
		d.System.Logging.Pretty = true
	}

	if s.Metrics.ListenAddress != "" {
		d.Metrics.ListenAddress = s.Metrics.ListenAddress
	}
	if s.Tracing.OTLPEndpoint != "" {
		d.Tracing.OTLPEndpoint = s.Tracing.OTLPEndpoint
	}
	if s.Tracing.ServiceName != "" {
		d.Tracing.ServiceName = s.Tracing.ServiceName
	}
	if s.Tracing.Insecure {
		d.Tracing.Insecure = true
	}

	if s.Metrics.AsyncBufferSize != 0 {
		d.Metrics.AsyncBufferSize = s.Metrics.AsyncBufferSize
	}

	if s.Infrastructure.AccountDBRef != "" {
		d.Infrastructure.AccountDBRef = s.Infrastructure.AccountDBRef
	}
	if s.Infrastructure.HistoryDBRef != "" {
		d.Infrastructure.HistoryDBRef = s.Infrastructure.HistoryDBRef
	}
	if s.Infrastructure.AutoMigrate {
		d.Infrastructure.AutoMigrate = true
	}
	if s.Infrastructure.SchemaMigrations {
		d.Infrastructure.SchemaMigrations = true
	}

	if s.Report.StorageRef != "" {
		d.Report.StorageRef = s.Report.StorageRef
	}
	if s.Report.OutputBaseDir != "" {
		d.Report.OutputBaseDir = s.Report.OutputBaseDir
	}
	if s.Report.Compression != "" {
		d.Report.Compression = s.Report.Compression
	}

	if s.AdapterConfigs != nil {
		if d.AdapterConfigs == nil {
			d.AdapterConfigs = make(map[string]interface{})
		}
		for key, value := range s.AdapterConfigs {
			d.AdapterConfigs[key] = value
		}
	}
	if s.StorageConfigs != nil {
		if d.StorageConfigs == nil {
			d.StorageConfigs = make(map[string]interface{})
		}
		for key, value := range s.StorageConfigs {
			d.StorageConfigs[key] = value
		}
	}
}

func mergeBatchConfig(dest, source *BatchConfig) {
	if source.Operation != "" {
		dest.Operation = source.Operation
	}
	if source.TenantID != "" {
		dest.TenantID = source.TenantID
	}
	if source.BusinessDate != "" {
		dest.BusinessDate = source.BusinessDate
	}
	if source.WorkerCount != 0 {
		dest.WorkerCount = source.WorkerCount
	}
	if source.PageSize != 0 {
		dest.PageSize = source.PageSize
	}
	if source.PrefetchQueueCapacity != 0 {
		dest.PrefetchQueueCapacity = source.PrefetchQueueCapacity
	}
	if source.Retry.MaxRetries != 0 {
		dest.Retry.MaxRetries = source.Retry.MaxRetries
	}
	if source.Retry.MaxBackoffSeconds != 0 {
		dest.Retry.MaxBackoffSeconds = source.Retry.MaxBackoffSeconds
	}
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
