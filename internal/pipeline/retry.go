package pipeline

import (
	"context"
	"errors"
	"time"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/source"
)

// Retry is an exponential backoff policy for transient fetch failures.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func RetryFromConfig(cfg config.SchedulerConfig) Retry {
	r := DefaultRetry()
	if cfg.RetryAttempts > 0 {
		r.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		r.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		r.MaxDelay = cfg.RetryMaxDelay
	}
	return r
}

// Backoff returns the delay after the given zero-based failed attempt.
func (r Retry) Backoff(attempt int) time.Duration {
	d := r.BaseDelay << attempt
	if d <= 0 || d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. Only FetchErrors of a retryable kind are retried.
func (r Retry) Do(ctx context.Context, sleep func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	attempts := max(r.MaxAttempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var fe *source.FetchError
		if !errors.As(err, &fe) || !fe.Retryable() || i == attempts-1 {
			return err
		}
		if serr := sleep(ctx, r.Backoff(i)); serr != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
