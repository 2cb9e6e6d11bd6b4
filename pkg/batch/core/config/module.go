package config

import "go.uber.org/fx"

// NewBatchConfigProvider extracts *BatchConfig so components can depend on the batch settings only.
func NewBatchConfigProvider(cfg *Config) *BatchConfig {
	return &cfg.Ledger.Batch
}

// Module provides configuration-related components to Fx.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewBatchConfigProvider),
)
