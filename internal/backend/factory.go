package backend

import (
	"context"
	"fmt"

	"impact/internal/log"
	"impact/internal/persistence/memory"
	"impact/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger: log.OrDiscard(logger).WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	for _, uid := range config.SeedUsers {
		if err := repo.EnsureUser(ctx, uid); err != nil {
			repo.Close()
			return nil, fmt.Errorf("seed user %s: %w", uid, err)
		}
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		log.FieldBackend, SQLiteBackend.String())

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store := memory.NewWithUsers(config.SeedUsers...)

	f.logger.InfoContext(ctx, "Initialized memory backend",
		"seed_users", len(config.SeedUsers),
		log.FieldBackend, MemoryBackend.String())

	return &BackendResult{
		Store:   store,
		Cleanup: nil,
	}, nil
}
