// Package backend selects and opens the local storage engine named by configuration.
package backend

import (
	"context"
	"fmt"

	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/storage"
	boltstore "fintrack/internal/storage/bolt"
	"fintrack/internal/storage/memory"
	"fintrack/internal/storage/sqlite"
)

// CleanupFunc releases whatever the backend holds open.
type CleanupFunc func() error

type Result struct {
	Stores  storage.Stores
	Cleanup CleanupFunc
}

// Factory creates storage backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type         BackendType
	SQLiteDBPath string
	BoltDBPath   string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	BoltBackend   BackendType = "bolt"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, BoltBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &Result{Stores: repo.Stores(), Cleanup: repo.Close}, nil

	case BoltBackend:
		store, err := boltstore.Open(config.BoltDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bolt store: %w", err)
		}
		f.logger.Info("Initialized bolt backend", "db_path", config.BoltDBPath)
		return &Result{Stores: store.Stores(), Cleanup: store.Close}, nil

	case MemoryBackend:
		f.logger.Warn("Initialized memory backend; queued writes will not survive a restart")
		return &Result{Stores: memory.New(), Cleanup: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	cfg := Config{
		Type:         BackendType(appConfig.StorageBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		BoltDBPath:   appConfig.BoltDBPath,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case BoltBackend:
		if c.BoltDBPath == "" {
			return fmt.Errorf("bolt database path is required for bolt backend")
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, BoltBackend, MemoryBackend}
}
