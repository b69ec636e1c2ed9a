package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"opticash/internal/cache"
	"opticash/internal/overlay"
	"opticash/internal/storage"
	"opticash/internal/store"
	"opticash/internal/store/cached"
	"opticash/internal/store/memory"
	"opticash/internal/store/rest"
)

// cacheCleanupInterval is how often expired cache entries are swept.
const cacheCleanupInterval = time.Minute

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		s       store.Store
		state   overlay.KV
		closers []func() error
		err     error
	)
	switch config.Type {
	case SQLiteBackend:
		var repo *storage.SQLiteRepository
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err == nil {
			s = repo
			if config.StateDBPath == "" || config.StateDBPath == config.SQLiteDBPath {
				state = repo
			}
			f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		}
	case RESTBackend:
		s, err = rest.New(config.APIBaseURL, config.APIToken, rest.WithTimeout(config.APITimeout))
		if err == nil {
			f.logger.Info("Initialized REST backend", "base_url", config.APIBaseURL)
		}
	case MemoryBackend:
		var mem *memory.Store
		if config.SeedFile != "" {
			mem, err = memory.NewFromFile(config.SeedFile)
		} else {
			mem = memory.New()
		}
		if err == nil {
			s = mem
			f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
		}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", config.Type, err)
	}

	if state == nil {
		state, err = f.createState(config.StateDBPath)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if c, ok := state.(interface{ Close() error }); ok {
			closers = append(closers, c.Close)
		}
	}

	result := &BackendResult{Store: s, State: state}
	if config.CacheSize > 0 {
		manager := cache.NewManager(f.logger)
		result.Cache = cached.New(s, config.CacheSize, config.CacheTTL)
		result.Cache.Register(manager)
		manager.Start(ctx, cacheCleanupInterval)
		result.Store = result.Cache
		closers = append(closers, func() error {
			manager.Stop()
			return nil
		})
		f.logger.Info("Enabled read cache", "size", config.CacheSize, "ttl", config.CacheTTL)
	}

	closers = append(closers, result.Store.Close)
	result.Cleanup = func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createState(path string) (overlay.KV, error) {
	if path == "" {
		f.logger.Warn("No state database configured, payment overlay is kept in memory")
		return overlay.NewMemoryKV(), nil
	}
	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	f.logger.Info("Initialized state database", "db_path", path)
	return repo, nil
}
