// Package config holds the settings of named storage connections.
package config

import (
	"fmt"

	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type       string `yaml:"type"`        // Type of storage (e.g., "local").
	BucketName string `yaml:"bucket_name"` // Default bucket name for operations.
	BaseDir    string `yaml:"base_dir"`    // Base directory for local file system operations.
}

// Lookup decodes the entry called name out of the ledger.storage configuration map.
func Lookup(storageConfigs map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	raw, ok := storageConfigs[name]
	if !ok {
		return cfg, fmt.Errorf("storage connection '%s' not found in configuration", name)
	}
	if err := configbinder.Bind(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return cfg, nil
}
