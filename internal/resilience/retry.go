// Package resilience retries transient store writes and keeps alert
// delivery off a failing webhook.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is the backoff policy for one kind of store write.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by ±fraction.
	JitterFraction float64

	// ShouldRetry replaces IsTransient when set.
	ShouldRetry func(err error) bool
	// OnRetry sees the 1-based number of the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is the store write policy: four attempts from 100ms,
// doubling up to 5s, with ±25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts or
// ctx ends. The last error is returned unchanged.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for writes that return a value, such as a created run.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		switch {
		case err == nil:
			return v, nil
		case attempt == cfg.MaxAttempts, ctx.Err() != nil, !retryable(err):
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, computeBackoff(attempt-1, cfg)) {
			return zero, err
		}
	}
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	cfg.JitterFraction = math.Max(cfg.JitterFraction, 0)
	return cfg
}

// computeBackoff is the delay after the n-th retry (0-based), capped at
// MaxBackoff before jitter.
func computeBackoff(n int, cfg RetryConfig) time.Duration {
	d := math.Min(float64(cfg.InitialBackoff)*math.Pow(cfg.Multiplier, float64(n)), float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		d *= 1 + cfg.JitterFraction*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

// RetryLogger logs each retried write of a store backend.
func RetryLogger(backend, operation string) func(int, error) {
	log := zap.L().With(zap.String("backend", backend), zap.String("operation", operation))
	return func(attempt int, err error) {
		log.Warn("store: retrying write", zap.Int("attempt", attempt), zap.Error(err))
	}
}
