// Package ner provides the optional named-entity recognition capability.
// A Recognizer may become ready some time after startup or never; callers
// must treat a not-ready recognizer as absent.
package ner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"go.uber.org/zap"
)

// ErrNotReady is returned by Recognize when the capability is not loaded.
var ErrNotReady = errors.New("ner: recognizer not ready")

// Entities holds the literal substrings classified by the recognizer.
type Entities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
}

// Recognizer classifies person and organization names in text.
type Recognizer interface {
	Ready() bool
	Recognize(ctx context.Context, text string) (Entities, error)
}

// Unavailable is the recognizer used when NER is disabled.
type Unavailable struct{}

func (Unavailable) Ready() bool { return false }

func (Unavailable) Recognize(context.Context, string) (Entities, error) {
	return Entities{}, ErrNotReady
}

type holder struct {
	r Recognizer
}

// Async loads a recognizer in the background and reports not-ready until
// loading succeeds. A failed load leaves it not-ready for good.
type Async struct {
	loaded atomic.Pointer[holder]
	failed atomic.Bool
	done   chan struct{}
}

// NewAsync starts load in a goroutine.
func NewAsync(ctx context.Context, load func(context.Context) (Recognizer, error), log *logger.Logger) *Async {
	a := &Async{done: make(chan struct{})}

	go func() {
		defer close(a.done)
		start := time.Now()

		r, err := load(ctx)
		if err != nil || r == nil {
			a.failed.Store(true)
			log.Warn("NER capability failed to load, falling back to pattern detection",
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
			return
		}

		a.loaded.Store(&holder{r: r})
		log.Info("NER capability loaded", zap.Duration("load_time", time.Since(start)))
	}()

	return a
}

// Ready reports whether the wrapped recognizer is loaded and ready.
func (a *Async) Ready() bool {
	h := a.loaded.Load()
	return h != nil && h.r.Ready()
}

// Failed reports whether loading gave up.
func (a *Async) Failed() bool {
	return a.failed.Load()
}

// Done is closed once loading has finished, successfully or not.
func (a *Async) Done() <-chan struct{} {
	return a.done
}

func (a *Async) Recognize(ctx context.Context, text string) (Entities, error) {
	h := a.loaded.Load()
	if h == nil || !h.r.Ready() {
		return Entities{}, ErrNotReady
	}
	return h.r.Recognize(ctx, text)
}

// New builds the recognizer selected by cfg. Loading always happens in the
// background so startup is never blocked on the NER backend.
func New(ctx context.Context, cfg config.NERConfig, log *logger.Logger) Recognizer {
	if !cfg.Enabled {
		return Unavailable{}
	}

	log = log.WithComponent("ner")

	switch cfg.Backend {
	case "onnx":
		return NewAsync(ctx, func(context.Context) (Recognizer, error) {
			return NewONNXRecognizer(cfg, log)
		}, log)
	default:
		return NewAsync(ctx, func(ctx context.Context) (Recognizer, error) {
			r := NewHTTPRecognizer(cfg)
			if err := r.WaitReady(ctx, 5*time.Second); err != nil {
				return nil, err
			}
			return r, nil
		}, log)
	}
}
