// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_AdmitsUnderBudget(t *testing.T) {
	t.Parallel()

	l := New("tmdb", 3, time.Minute)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Admit(ctx); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("under-budget admissions took %v, want immediate", elapsed)
	}
	if got := l.Pending(); got != 3 {
		t.Errorf("Pending() = %d, want 3", got)
	}
}

func TestLimiter_BlocksWhenWindowFull(t *testing.T) {
	t.Parallel()

	window := 300 * time.Millisecond
	l := New("omdb", 2, window)
	ctx := context.Background()

	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	// Third admission must wait until the first timestamp leaves the
	// window (plus safety margin).
	start := time.Now()
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 200*time.Millisecond {
		t.Errorf("blocked admission returned after %v, want >= ~window", elapsed)
	}
	if elapsed > window+500*time.Millisecond {
		t.Errorf("blocked admission took %v, want close to window", elapsed)
	}
}

func TestLimiter_RecordsTimestampAfterWait(t *testing.T) {
	t.Parallel()

	l := New("trakt", 1, 200*time.Millisecond)
	ctx := context.Background()

	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	// The second admission's timestamp must be post-wait: the window
	// now holds exactly one fresh stamp, not two stale ones.
	if got := l.Pending(); got != 1 {
		t.Errorf("Pending() after waited admission = %d, want 1", got)
	}
}

func TestLimiter_AdmitInterruptedByCancellation(t *testing.T) {
	t.Parallel()

	l := New("mdblist", 1, 10*time.Second)
	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Admit(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Admit() after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Admit() did not observe cancellation")
	}
}

func TestLimiter_UnlimitedWhenZeroBudget(t *testing.T) {
	t.Parallel()

	l := New("dataset", 0, 0)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := l.Admit(ctx); err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
	}
}

func TestRegistry_UnknownProviderAdmitted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("tmdb", 1, time.Minute)

	if err := r.Admit(context.Background(), "unknown"); err != nil {
		t.Errorf("Admit(unknown) error = %v, want nil", err)
	}
}

func TestRegistry_NilAdmitsEverything(t *testing.T) {
	t.Parallel()

	var r *Registry
	r.Register("tmdb", 1, time.Minute)

	for i := 0; i < 10; i++ {
		if err := r.Admit(context.Background(), "tmdb"); err != nil {
			t.Fatalf("nil registry Admit() error = %v", err)
		}
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	base := time.Now()
	now := base
	l := New("tmdb", 2, time.Second)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	now = base.Add(400 * time.Millisecond)
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}

	// Advance past the first stamp only: one slot frees up.
	now = base.Add(1100 * time.Millisecond)
	if got := l.Pending(); got != 1 {
		t.Errorf("Pending() after slide = %d, want 1", got)
	}
	if err := l.Admit(ctx); err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if got := l.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
}
