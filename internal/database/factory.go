package database

import (
	"fmt"
	"os"
	"path/filepath"

	"storysync/internal/config"
	"storysync/internal/story"
)

// NewStoreFromConfig creates a Store implementation based on the database config type.
// The store is not opened; its first operation opens it.
func NewStoreFromConfig(cfg config.DatabaseConfig, deviceID string, logger story.Logger, clock story.Clock) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if deviceID == "" {
			return nil, fmt.Errorf("device_id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		return NewSQLiteStore(filepath.Join(cfg.DataDir, deviceID+".db"), logger, clock), nil
	case "memory":
		return NewSQLiteStore(":memory:", logger, clock), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
