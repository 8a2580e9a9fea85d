// Package ratelimit paces synthesis attempts with one token bucket per region.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DelayObserver is told how long a Wait call blocked for a key.
type DelayObserver func(key string, d time.Duration)

// Config sets bucket parameters. A non-positive RPS disables pacing.
type Config struct {
	RPS   float64
	Burst int
	// PerRegion overrides RPS for specific region codes.
	PerRegion map[string]float64
	// Observer, when set, receives waits longer than a millisecond.
	Observer DelayObserver
}

// Limiter hands out per-key token buckets.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	override map[string]rate.Limit
	observe  DelayObserver
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		rps:      toLimit(cfg.RPS),
		burst:    burst,
		override: make(map[string]rate.Limit, len(cfg.PerRegion)),
		observe:  cfg.Observer,
	}
	for region, rps := range cfg.PerRegion {
		l.override[normalize(region)] = toLimit(rps)
	}
	return l
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func normalize(key string) string {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return "UNKNOWN"
	}
	return key
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		limit := l.rps
		if o, found := l.override[key]; found {
			limit = o
		}
		b = rate.NewLimiter(limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Wait blocks until the region's bucket yields a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, region string) error {
	if l == nil {
		return nil
	}
	key := normalize(region)
	start := time.Now()
	if err := l.bucket(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond && l.observe != nil {
		l.observe(key, d)
	}
	return nil
}

// Limit reports the configured rate for region.
func (l *Limiter) Limit(region string) rate.Limit {
	return l.bucket(normalize(region)).Limit()
}
