package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter spreads each delay by up to this fraction either way so
	// replicas reloading the same book do not hit its host in lockstep.
	Jitter float64
	// OnRetry, when set, is told about every failed attempt that will be
	// retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type delayedError struct {
	err   error
	delay time.Duration
}

func (d *delayedError) Error() string { return d.err.Error() }
func (d *delayedError) Unwrap() error { return d.err }

// After marks err as retryable no sooner than delay, as a host answering
// 429 or 503 with Retry-After asks. The delay is still capped by MaxDelay.
func After(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &delayedError{err: err, delay: delay}
}

// Retry calls fn until it succeeds, returns a Permanent error, the attempts
// run out, or ctx is done. Delays double from InitialDelay.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		delay := backoff(attempt, cfg)
		var later *delayedError
		if errors.As(err, &later) && later.delay > delay {
			delay = min(later.delay, cfg.MaxDelay)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", err,
			"next_delay", delay,
		)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: retry aborted: %w (last error: %v)", name, ctx.Err(), err)
		}
	}
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := cfg.InitialDelay
	for i := 1; i < attempt && d < cfg.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.MaxDelay)
	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}
