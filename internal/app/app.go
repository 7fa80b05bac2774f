// Package app wires configuration into a ready redaction engine. Both
// binaries start through Build.
package app

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/ner"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/raaihank/lexmask/internal/storage"
	"go.uber.org/zap"
)

// Services holds the initialized core components.
type Services struct {
	Storage    storage.Store
	Aliases    *alias.Store
	Recognizer ner.Recognizer
	Engine     *privacy.Engine

	logger *logger.Logger
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	lc := logger.Config{Level: cfg.Level, Format: cfg.Format}
	if cfg.File.Enabled {
		lc.File = &logger.FileConfig{Enabled: true, Path: cfg.File.Path}
	}
	return logger.New(lc)
}

// Build opens storage, loads the alias store and blacklist, starts NER
// loading in the background and creates the engine. A storage read error
// is fatal: the service must not start over a store it could not read.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, error) {
	backend, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	aliases, err := alias.Load(ctx, backend, cfg.Storage.AliasKey, log.WithComponent("alias"))
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to load alias store: %w", err)
	}

	blacklist := privacy.NewBlacklist(backend, cfg.Storage.BlacklistKey)
	found, err := blacklist.Load(ctx)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if !found && len(cfg.Privacy.Blacklist) > 0 {
		if err := blacklist.Set(ctx, cfg.Privacy.Blacklist); err != nil {
			backend.Close()
			return nil, err
		}
	}

	recognizer := ner.New(ctx, cfg.NER, log)

	engine, err := privacy.New(cfg.Privacy, aliases, blacklist, recognizer, log)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to create redaction engine: %w", err)
	}

	log.Info("Core services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("aliases", aliases.Len()),
		zap.Int("blacklist_terms", len(blacklist.Terms())),
		zap.Bool("ner_enabled", cfg.NER.Enabled),
		zap.String("ner_backend", cfg.NER.Backend),
	)

	return &Services{
		Storage:    backend,
		Aliases:    aliases,
		Recognizer: recognizer,
		Engine:     engine,
		logger:     log,
	}, nil
}

// ApplyReload applies the parts of a reloaded configuration that can change
// at runtime. Currently that is the blacklist, replaced only when the
// configured list itself changed.
func (s *Services) ApplyReload(ctx context.Context, prev, next *config.Config) error {
	if reflect.DeepEqual(prev.Privacy.Blacklist, next.Privacy.Blacklist) {
		return nil
	}
	if err := s.Engine.Blacklist().Set(ctx, next.Privacy.Blacklist); err != nil {
		return err
	}
	s.logger.Info("Blacklist reloaded from configuration", zap.Int("terms", len(s.Engine.Blacklist().Terms())))
	return nil
}

// AwaitNER blocks until background NER loading has finished, successfully
// or not, so that every record of a one-shot run sees the same detectors.
// It returns an error if loading is still running after timeout. A zero
// timeout waits for as long as ctx allows.
func (s *Services) AwaitNER(ctx context.Context, timeout time.Duration) error {
	loader, ok := s.Recognizer.(interface{ Done() <-chan struct{} })
	if !ok {
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-loader.Done():
		s.logger.Info("NER loading settled", zap.Bool("ner_ready", s.Recognizer.Ready()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("NER still loading after %s: %w", timeout, ctx.Err())
	}
}

// Close releases the storage backend and any closable recognizer.
func (s *Services) Close() error {
	if c, ok := s.Recognizer.(io.Closer); ok {
		c.Close()
	}
	return s.Storage.Close()
}
