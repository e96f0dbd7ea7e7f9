// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package ratelimit implements per-provider sliding-window admission
// control for outbound provider requests.
//
// This is deliberately not a token bucket: the window is strictly
// sliding and recomputed on every call, matching the budget semantics
// providers document ("N requests per W seconds"). A token bucket would
// admit bursts that straddle the window boundary and trip upstream 429s.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
)

// safetyMargin is added to every computed wait so that a request fired
// immediately after the wait cannot land inside the closing edge of the
// provider's own window accounting.
const safetyMargin = 100 * time.Millisecond

// Limiter is a sliding-window admission controller for one provider.
// The zero value is not usable; construct with New.
type Limiter struct {
	mu       sync.Mutex
	provider string
	max      int
	window   time.Duration
	stamps   []time.Time // admission times within the window, oldest first

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter admitting at most max requests within any
// sliding window of the given duration. max <= 0 disables limiting.
func New(provider string, max int, window time.Duration) *Limiter {
	return &Limiter{
		provider: provider,
		max:      max,
		window:   window,
		now:      time.Now,
	}
}

// Admit blocks until the caller may issue one request, or until ctx is
// cancelled. The admission timestamp is recorded only once the caller
// is actually released, never before a wait.
func (l *Limiter) Admit(ctx context.Context) error {
	if l.max <= 0 || l.window <= 0 {
		return ctx.Err()
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		wait := l.window - now.Sub(l.stamps[0]) + safetyMargin
		l.mu.Unlock()

		logging.Debug().
			Str("provider", l.provider).
			Dur("wait", wait).
			Int("in_window", l.max).
			Msg("Rate limit window full, waiting")
		metrics.RateLimiterWaits.WithLabelValues(l.provider).Inc()
		metrics.RateLimiterWaitSeconds.WithLabelValues(l.provider).Add(wait.Seconds())

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
		// Re-check: another caller may have claimed the freed slot.
	}
}

// Pending returns the number of admissions currently inside the window.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// prune drops timestamps that have slid out of the window.
// Must be called with mu held.
func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.stamps) && now.Sub(l.stamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Registry holds one limiter per provider and is the shared admission
// point for every outbound session. A nil Registry admits everything,
// which keeps limiting out of the way in tests.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Register installs a limiter for the named provider, replacing any
// previous one. No-op on a nil registry.
func (r *Registry) Register(provider string, max int, window time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[provider] = New(provider, max, window)
}

// Admit admits one request for the named provider. Providers without a
// registered limiter are admitted immediately.
func (r *Registry) Admit(ctx context.Context, provider string) error {
	if r == nil {
		return ctx.Err()
	}
	r.mu.RLock()
	l := r.limiters[provider]
	r.mu.RUnlock()

	if l == nil {
		return ctx.Err()
	}
	return l.Admit(ctx)
}
