package storage

import (
	"strings"

	"github.com/smartdevs17/nft-trade-watcher/pkg/utils"
)

// NewStorage creates a storage instance based on configuration
func NewStorage(cfg *Config) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return NewSQLiteStorage(cfg), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(cfg), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type", cfg.Type)
	}
}

// ValidateConfig validates storage configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Type == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage type is required", "")
	}
	if cfg.ConnectionString == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required", "")
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite", "postgres", "postgresql":
		return nil
	}
	return utils.NewAppError(utils.ErrCodeConfiguration,
		"Unsupported storage type", "Supported types: sqlite, postgres")
}
