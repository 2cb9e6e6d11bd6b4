// Package config provides the configuration structures of the ledger batch engine and their loading
// from embedded YAML, .env files and environment variables.
package config

import (
	"fmt"
	"time"
)

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// BusinessDateLayout is the layout of batch.business_date.
const BusinessDateLayout = "2006-01-02"

// RetryConfig holds the per-account retry settings.
type RetryConfig struct {
	MaxRetries        int `yaml:"max_retries"`         // MaxRetries is the number of retries after the first attempt.
	MaxBackoffSeconds int `yaml:"max_backoff_seconds"` // MaxBackoffSeconds is the upper bound of the jittered sleep.
}

// BatchConfig holds the settings of the account batch run.
type BatchConfig struct {
	// Operation names the batch operation (e.g., "interest_posting").
	Operation string `yaml:"operation"`
	// TenantID identifies the tenant the run executes for.
	TenantID string `yaml:"tenant_id"`
	// BusinessDate is the logical as-of date (YYYY-MM-DD). Empty means today in the system timezone.
	BusinessDate string `yaml:"business_date"`
	// WorkerCount is the number of concurrent workers per wave.
	WorkerCount int `yaml:"worker_count"`
	// PageSize is the maximum number of identifiers per cursor fetch.
	PageSize int `yaml:"page_size"`
	// PrefetchQueueCapacity is the number of pages that may be fetched ahead.
	PrefetchQueueCapacity int `yaml:"prefetch_queue_capacity"`
	// Retry is the per-account retry configuration.
	Retry RetryConfig `yaml:"retry"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// Pretty switches to human-readable console output.
	Pretty bool `yaml:"pretty"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	// ListenAddress is the address of the /metrics endpoint. Empty disables the endpoint.
	ListenAddress string `yaml:"listen_address"`
	// AsyncBufferSize is the event queue size of the asynchronous recorder. 0 uses the default of 100.
	// The size is raised to at least two events per account of a page.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig holds the OpenTelemetry settings.
type TracingConfig struct {
	// OTLPEndpoint is the OTLP/gRPC collector endpoint. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// AccountDBRef is the name of the database connection that holds the accounts.
	AccountDBRef string `yaml:"account_db_ref"`
	// HistoryDBRef is the database connection that stores run history. Empty keeps history in memory.
	HistoryDBRef string `yaml:"history_db_ref"`
	// AutoMigrate creates the ledger and history tables on startup with GORM.
	AutoMigrate bool `yaml:"auto_migrate"`
	// SchemaMigrations applies the versioned SQL migrations on startup.
	SchemaMigrations bool `yaml:"schema_migrations"`
}

// ReportConfig holds the settings of the run report export.
type ReportConfig struct {
	// StorageRef names the ledger.storage connection reports are written to. Empty disables the export.
	StorageRef string `yaml:"storage_ref"`
	// OutputBaseDir is the object name prefix of every report.
	OutputBaseDir string `yaml:"output_base_dir"`
	// Compression is the Parquet codec: SNAPPY, GZIP or NONE.
	Compression string `yaml:"compression"`
}

// LedgerConfig holds all configuration under the "ledger" top-level key.
type LedgerConfig struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Report         ReportConfig         `yaml:"report"`
	// AdapterConfigs holds named database connection settings.
	AdapterConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds named storage connection settings.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Ledger LedgerConfig `yaml:"ledger"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Batch: BatchConfig{
				Operation:             "interest_posting",
				TenantID:              "default",
				WorkerCount:           4,
				PageSize:              500,
				PrefetchQueueCapacity: 1,
				Retry: RetryConfig{
					MaxRetries:        3,
					MaxBackoffSeconds: 10,
				},
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Tracing: TracingConfig{
				ServiceName: "ledger-batch",
			},
			Infrastructure: InfrastructureConfig{
				AccountDBRef: "ledger",
			},
			Report: ReportConfig{
				OutputBaseDir: "reports",
				Compression:   "SNAPPY",
			},
			AdapterConfigs: map[string]interface{}{},
			StorageConfigs: map[string]interface{}{},
		},
	}
}

// Validate checks the batch settings for values the engine cannot run with.
func (c *Config) Validate() error {
	b := c.Ledger.Batch
	switch {
	case b.WorkerCount <= 0:
		return fmt.Errorf("batch.worker_count must be positive, got %d", b.WorkerCount)
	case b.PageSize <= 0:
		return fmt.Errorf("batch.page_size must be positive, got %d", b.PageSize)
	case b.PrefetchQueueCapacity <= 0:
		return fmt.Errorf("batch.prefetch_queue_capacity must be positive, got %d", b.PrefetchQueueCapacity)
	case b.Retry.MaxRetries < 0:
		return fmt.Errorf("batch.retry.max_retries must not be negative, got %d", b.Retry.MaxRetries)
	case b.Retry.MaxBackoffSeconds < 1:
		return fmt.Errorf("batch.retry.max_backoff_seconds must be at least 1, got %d", b.Retry.MaxBackoffSeconds)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if b.BusinessDate != "" {
		if _, err := time.Parse(BusinessDateLayout, b.BusinessDate); err != nil {
			return fmt.Errorf("batch.business_date %q is not YYYY-MM-DD: %w", b.BusinessDate, err)
		}
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ledger.System.Timezone)
	if err != nil {
		return nil, fmt.Errorf("system.timezone %q: %w", c.Ledger.System.Timezone, err)
	}
	return loc, nil
}

// BusinessDate resolves the configured business date, defaulting to today in the configured timezone.
func (c *Config) BusinessDate(now time.Time) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	if c.Ledger.Batch.BusinessDate == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	return time.ParseInLocation(BusinessDateLayout, c.Ledger.Batch.BusinessDate, loc)
}
