package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/raaihank/lexmask/internal/config"
)

// HTTPRecognizer calls an external NER service.
//
// Request:  POST {url} {"text": "..."}
// Response: {"people": ["..."], "organizations": ["..."]}
type HTTPRecognizer struct {
	url       string
	healthURL string
	client    *http.Client
	ready     atomic.Bool
}

// NewHTTPRecognizer creates a client for the service in cfg.
func NewHTTPRecognizer(cfg config.NERConfig) *HTTPRecognizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPRecognizer{
		url:       cfg.URL,
		healthURL: cfg.HealthURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Ready reports whether a health probe has succeeded.
func (h *HTTPRecognizer) Ready() bool {
	return h.ready.Load()
}

// Probe checks the health endpoint once. Without a health URL the service
// is assumed reachable.
func (h *HTTPRecognizer) Probe(ctx context.Context) error {
	if h.healthURL == "" {
		h.ready.Store(true)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.healthURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("ner health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ner health check failed: HTTP %d", resp.StatusCode)
	}

	h.ready.Store(true)
	return nil
}

// WaitReady probes until the service answers or ctx is done.
func (h *HTTPRecognizer) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := h.Probe(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *HTTPRecognizer) Recognize(ctx context.Context, text string) (Entities, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Entities{}, fmt.Errorf("failed to encode ner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return Entities{}, fmt.Errorf("failed to build ner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Entities{}, fmt.Errorf("ner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Entities{}, fmt.Errorf("ner request failed: HTTP %d", resp.StatusCode)
	}

	var entities Entities
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&entities); err != nil {
		return Entities{}, fmt.Errorf("failed to decode ner response: %w", err)
	}
	return entities, nil
}
