// Package security holds request guardrails for the HTTP service.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/lexmask/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config  config.SecurityConfig
	clients map[string]*client
	mu      sync.RWMutex
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.SecurityConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow reports whether a request from clientIP may proceed.
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.RateLimit.Enabled || r.config.RateLimit.RequestsPerMin <= 0 {
		return true
	}

	c := r.getClient(clientIP)
	now := r.now()

	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Tokens returns the tokens left in clientIP's bucket, or -1 if the client
// has not been seen.
func (r *RateLimiter) Tokens(clientIP string) float64 {
	r.mu.RLock()
	c, exists := r.clients[clientIP]
	r.mu.RUnlock()

	if !exists {
		return -1
	}
	return c.limiter.TokensAt(r.now())
}

func (r *RateLimiter) getClient(clientIP string) *client {
	r.mu.RLock()
	c, exists := r.clients[clientIP]
	r.mu.RUnlock()

	if exists {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if c, exists := r.clients[clientIP]; exists {
		return c
	}

	burst := r.config.RateLimit.Burst
	if burst <= 0 {
		burst = r.config.RateLimit.RequestsPerMin
	}
	perSecond := rate.Limit(float64(r.config.RateLimit.RequestsPerMin) / 60.0)

	c = &client{limiter: rate.NewLimiter(perSecond, burst), lastSeen: r.now()}
	r.clients[clientIP] = c
	return c
}

// CleanupOldBuckets drops clients idle for longer than maxIdle.
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for ip, c := range r.clients {
		c.mu.Lock()
		idle := c.lastSeen.Before(cutoff)
		c.mu.Unlock()
		if idle {
			delete(r.clients, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine periodically drops idle clients until ctx is done.
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}
