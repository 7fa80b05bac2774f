// Package storage provides the key/value persistence used for the alias map
// and the user blacklist. Every backend stores opaque string values under
// string keys; callers own the encoding.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal durable key/value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set durably stores value under key. It returns only after the write
	// has been flushed by the backend.
	Set(ctx context.Context, key, value string) error
	// Close releases backend resources.
	Close() error
}

// New opens the backend selected in cfg.
func New(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case "memory":
		store = NewMemoryStore()
	case "file":
		store, err = NewFileStore(cfg.Path, log)
	case "badger":
		store, err = NewBadgerStore(cfg.Path, log)
	case "sqlite":
		store, err = NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg.DatabaseURL, cfg.MaxOpenConns)
	case "redis":
		store, err = NewRedisStore(ctx, cfg.RedisURL, cfg.MaxOpenConns, log)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Backend, err)
	}

	log.Info("Storage backend ready", zap.String("backend", cfg.Backend))
	return store, nil
}
