// Package ratelimit implements per-source sliding-window admission control.
//
// Admit never drops a call: it either takes a slot and returns zero, or returns
// how long the caller must wait before asking again. Each source has its own
// window, so one saturated market never delays the other.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"csgo-arbitrage/internal/config"
	"csgo-arbitrage/internal/models"
)

// ErrWaitExceeded is returned by Wait when admission would take longer than the allowed maximum.
var ErrWaitExceeded = errors.New("ratelimit: max wait exceeded")

// Limit is the number of calls allowed within a window.
type Limit struct {
	MaxCalls int
	Window   time.Duration
}

// Admitter is consulted by the source clients before every request.
type Admitter interface {
	Admit(ctx context.Context, source models.Source) (time.Duration, error)
	// Cooldown is triggered by an upstream 429.
	Cooldown(ctx context.Context, source models.Source)
}

type window struct {
	limit         Limit
	calls         []time.Time
	cooldownUntil time.Time
}

// Limiter is the in-process Admitter. It is safe for concurrent use.
type Limiter struct {
	mu         sync.Mutex
	now        func() time.Time
	multiplier float64
	windows    map[models.Source]*window
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithCooldownMultiplier sets how much a 429 stretches the source's window.
func WithCooldownMultiplier(m float64) Option {
	return func(l *Limiter) {
		if m >= 1 {
			l.multiplier = m
		}
	}
}

func New(limits map[models.Source]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		now:        time.Now,
		multiplier: 2,
		windows:    make(map[models.Source]*window, len(limits)),
	}
	for src, lim := range limits {
		l.windows[src] = &window{limit: lim}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit takes a slot for source or returns the wait until one frees up.
// Sources without a configured limit are always admitted.
func (l *Limiter) Admit(_ context.Context, source models.Source) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[source]
	if !ok || w.limit.MaxCalls <= 0 || w.limit.Window <= 0 {
		return 0, nil
	}

	now := l.now()
	span := w.limit.Window
	if now.Before(w.cooldownUntil) {
		span = l.stretched(w.limit.Window)
	}

	// Drop everything older than the widest window we may ever look at.
	w.calls = prune(w.calls, now.Add(-l.stretched(w.limit.Window)))

	first := len(w.calls)
	cutoff := now.Add(-span)
	for i, t := range w.calls {
		if t.After(cutoff) {
			first = i
			break
		}
	}
	inWindow := len(w.calls) - first
	if inWindow < w.limit.MaxCalls {
		w.calls = append(w.calls, now)
		return 0, nil
	}

	oldest := w.calls[len(w.calls)-w.limit.MaxCalls]
	wait := oldest.Add(span).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, nil
}

// Cooldown stretches the source's window by the multiplier for one stretched window length.
func (l *Limiter) Cooldown(_ context.Context, source models.Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[source]
	if !ok {
		return
	}
	w.cooldownUntil = l.now().Add(l.stretched(w.limit.Window))
}

// Reset clears every window and cool-down.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.windows {
		w.calls = nil
		w.cooldownUntil = time.Time{}
	}
}

// InWindow reports how many admitted calls the source currently has on record.
func (l *Limiter) InWindow(source models.Source) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[source]; ok {
		return len(w.calls)
	}
	return 0
}

func (l *Limiter) stretched(d time.Duration) time.Duration {
	return time.Duration(float64(d) * l.multiplier)
}

func prune(calls []time.Time, before time.Time) []time.Time {
	i := 0
	for i < len(calls) && !calls[i].After(before) {
		i++
	}
	if i == 0 {
		return calls
	}
	return append(calls[:0], calls[i:]...)
}

// Wait blocks until a slot is admitted. It fails with ErrWaitExceeded when the
// accumulated wait would pass maxWait, and with the context error on cancellation.
func Wait(ctx context.Context, a Admitter, source models.Source, maxWait time.Duration) (time.Duration, error) {
	var waited time.Duration
	for {
		d, err := a.Admit(ctx, source)
		if err != nil {
			return waited, err
		}
		if d <= 0 {
			return waited, nil
		}
		if maxWait > 0 && waited+d > maxWait {
			return waited, fmt.Errorf("%w: %s needs %v more (waited %v, max %v)", ErrWaitExceeded, source, d, waited, maxWait)
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		case <-timer.C:
		}
		waited += d
	}
}

// LimitsFromConfig maps the configured per-source limits.
func LimitsFromConfig(cfg config.RateLimitConfig) map[models.Source]Limit {
	return map[models.Source]Limit{
		models.SourceSteam: {MaxCalls: cfg.SteamMaxCalls, Window: cfg.SteamWindow},
		models.SourceBuff:  {MaxCalls: cfg.BuffMaxCalls, Window: cfg.BuffWindow},
	}
}

var _ Admitter = (*Limiter)(nil)
