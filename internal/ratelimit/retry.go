package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig shapes the single-retry backoff applied to rate-limited
// adapter calls. A throttled call is retried exactly once; any other
// failure returns immediately.
type RetryConfig struct {
	// Backoff is the base delay before the retry. Default: 2s.
	Backoff time.Duration

	// JitterFraction randomizes the delay by ±fraction. Default: 0.25.
	JitterFraction float64

	// ShouldRetry classifies retryable errors. Required.
	ShouldRetry func(err error) bool

	// OnRetry is called once before the retry sleep.
	OnRetry func(err error)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// DoVal runs fn, retrying once with jittered backoff when ShouldRetry
// classifies the failure as retryable. Context cancellation aborts the
// backoff sleep.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	val, err := fn(ctx)
	if err == nil {
		return val, nil
	}
	if ctx.Err() != nil || cfg.ShouldRetry == nil || !cfg.ShouldRetry(err) {
		return val, err
	}

	if cfg.OnRetry != nil {
		cfg.OnRetry(err)
	}

	delay := float64(cfg.Backoff)
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	timer := time.NewTimer(time.Duration(delay))
	select {
	case <-ctx.Done():
		timer.Stop()
		return val, err
	case <-timer.C:
	}

	return fn(ctx)
}
