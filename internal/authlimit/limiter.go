package authlimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimiterConfig controls the token bucket handed to each distinct identity.
type LimiterConfig struct {
	// RequestsPerMinute is the sustained admission rate per identity.
	RequestsPerMinute int
	// Burst is the largest instantaneous spike a single identity may admit
	// above the sustained rate.
	Burst int
}

func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.Burst <= 0 {
		c.Burst = c.RequestsPerMinute
	}
	return c
}

// Limiter admits or rejects requests per identity key, lazily creating one
// token-bucket limiter per key and reusing it for the lifetime of the
// process. Keys are typically an identity's email address.
type Limiter struct {
	cfg LimiterConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter builds a Limiter from cfg, filling in sensible defaults for any
// zero field.
func NewLimiter(cfg LimiterConfig) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request for key may proceed right now, consuming
// one token if so. It never blocks.
func (l *Limiter) Allow(key string) bool {
	return l.bucketFor(key).Allow()
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		perSecond := float64(l.cfg.RequestsPerMinute) / 60
		b = rate.NewLimiter(rate.Limit(perSecond), l.cfg.Burst)
		l.buckets[key] = b
	}
	return b
}

// Reset discards the bucket tracked for key, if any. Intended for tests.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

