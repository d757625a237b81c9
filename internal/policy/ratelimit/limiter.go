// Package ratelimit implements the politeness pacer shared by discoverers and
// the batch extractor: one token bucket per host so consecutive requests to
// the same origin are separated by at least the configured delay.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/docket-crawler/internal/metrics"
)

// Limiter manages per-host pacing.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

// Config holds pacer configuration.
type Config struct {
	// Delay is the minimum spacing between requests to one host. Zero disables pacing.
	Delay time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
	}
}

// NoDelay returns a Limiter that never waits.
func NoDelay() *Limiter {
	return New(Config{})
}

// Wait blocks until the host of rawURL may be contacted again, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l.limit == rate.Inf {
		return nil
	}
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.limit, 1)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObservePacerDelay(domain, duration)
	}
	return nil
}
