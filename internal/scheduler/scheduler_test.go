// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/provider"
)

type fakeClient struct {
	name  string
	fetch func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error)
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
	return f.fetch(ctx, item)
}

func (f *fakeClient) TestConnection(ctx context.Context) error { return nil }

func okResult(source string) *models.ProviderResult {
	return &models.ProviderResult{
		Source:  source,
		Ratings: map[string]models.RatingValue{source: {Rating: 7.5, Votes: 100}},
	}
}

func testConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		MaxWorkers:     6,
		MaxPerProvider: 2,
		ItemTimeout:    5 * time.Second,
		PollInterval:   10 * time.Millisecond,
	}
}

func items(n int) []*models.ItemRecord {
	out := make([]*models.ItemRecord, n)
	for i := range out {
		out[i] = &models.ItemRecord{
			LibraryID: i + 1,
			Title:     fmt.Sprintf("Item %d", i+1),
			Kind:      models.KindMovie,
			IDs:       models.Identifiers{IMDB: fmt.Sprintf("tt%07d", i+1)},
		}
	}
	return out
}

// gauge tracks a high-water mark of concurrent calls.
type gauge struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (g *gauge) enter() {
	v := g.current.Add(1)
	for {
		p := g.peak.Load()
		if v <= p || g.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

func (g *gauge) exit() { g.current.Add(-1) }

func TestConcurrencyBoundsHold(t *testing.T) {
	var global gauge
	perProvider := map[string]*gauge{}
	var clients []provider.Client

	for _, name := range []string{"alpha", "beta", "gamma"} {
		g := &gauge{}
		perProvider[name] = g
		n := name
		clients = append(clients, &fakeClient{
			name: n,
			fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
				global.enter()
				g.enter()
				defer global.exit()
				defer g.exit()
				time.Sleep(5 * time.Millisecond)
				return okResult(n), nil
			},
		})
	}

	cfg := testConfig()
	exec := New(cfg, clients)
	ctx := context.Background()

	for _, item := range items(20) {
		exec.Submit(ctx, item)
	}
	finalized := exec.Drain(ctx)

	if len(finalized) != 20 {
		t.Fatalf("finalized = %d, want 20", len(finalized))
	}
	if peak := global.peak.Load(); peak > int64(cfg.MaxWorkers) {
		t.Errorf("global in-flight peak = %d, exceeds limit %d", peak, cfg.MaxWorkers)
	}
	for name, g := range perProvider {
		if peak := g.peak.Load(); peak > int64(cfg.MaxPerProvider) {
			t.Errorf("provider %s peak = %d, exceeds limit %d", name, peak, cfg.MaxPerProvider)
		}
	}
	for _, state := range finalized {
		if state.Reason != FinalizeComplete {
			t.Errorf("item %s finalized as %s, want complete", state.Item.Title, state.Reason)
		}
		if len(state.Results) != 3 {
			t.Errorf("item %s collected %d results, want 3", state.Item.Title, len(state.Results))
		}
	}
}

func TestLateResultDiscardedAfterFinalization(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeClient{
		name: "slow",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			<-release
			return okResult("slow"), nil
		},
	}
	fast := &fakeClient{
		name: "fast",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			return okResult("fast"), nil
		},
	}

	cfg := testConfig()
	cfg.ItemTimeout = 50 * time.Millisecond
	exec := New(cfg, []provider.Client{slow, fast})
	ctx := context.Background()

	state := exec.Submit(ctx, items(1)[0])

	deadline := time.Now().Add(2 * time.Second)
	for !state.Finalized && time.Now().Before(deadline) {
		exec.Collect(ctx, cfg.PollInterval)
	}
	if !state.Finalized {
		t.Fatal("item never finalized")
	}
	if state.Reason != FinalizeTimeout {
		t.Fatalf("reason = %s, want timeout", state.Reason)
	}

	resultsBefore := len(state.Results)
	if resultsBefore != 1 {
		t.Fatalf("results before late delivery = %d, want 1 (fast only)", resultsBefore)
	}

	// Deliver the late result; the frozen record must not change.
	close(release)
	exec.Drain(ctx)

	if len(state.Results) != resultsBefore {
		t.Errorf("late result mutated a finalized item: %d results", len(state.Results))
	}
	if exec.InFlight() != 0 {
		t.Errorf("in flight = %d after drain, want 0", exec.InFlight())
	}

	found := false
	for _, f := range state.Failures {
		if f.Provider == "slow" && f.Kind == provider.KindRetryable {
			found = true
		}
	}
	if !found {
		t.Error("timed-out provider must be recorded as a retryable failure")
	}
}

func TestCancellationKeepsPartialProgress(t *testing.T) {
	var mu sync.Mutex
	started := 0
	blocked := &fakeClient{
		name: "blocked",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			mu.Lock()
			started++
			mu.Unlock()
			<-ctx.Done()
			return nil, provider.Retryable("blocked", "cancelled", ctx.Err())
		},
	}
	instant := &fakeClient{
		name: "instant",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			return okResult("instant"), nil
		},
	}

	exec := New(testConfig(), []provider.Client{blocked, instant})
	ctx, cancel := context.WithCancel(context.Background())

	states := make([]*ItemState, 0, 4)
	for _, item := range items(4) {
		states = append(states, exec.Submit(ctx, item))
	}

	// Let the instant provider land its results first.
	for i := 0; i < 20; i++ {
		exec.Collect(ctx, 5*time.Millisecond)
	}

	cancel()
	exec.Drain(ctx)

	for _, state := range states {
		if !state.Finalized {
			t.Fatalf("item %s not finalized after cancellation", state.Item.Title)
		}
		got := false
		for _, r := range state.Results {
			if r.Source == "instant" {
				got = true
			}
		}
		if !got {
			t.Errorf("item %s lost its completed result on cancellation", state.Item.Title)
		}
	}
	if exec.InFlight() != 0 {
		t.Errorf("in flight = %d, want 0", exec.InFlight())
	}
}

func TestRateLimitedHookFiresOncePerProvider(t *testing.T) {
	limited := &fakeClient{
		name: "limited",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			return nil, provider.RateLimited("limited")
		},
	}
	healthy := &fakeClient{
		name: "healthy",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			return okResult("healthy"), nil
		},
	}

	exec := New(testConfig(), []provider.Client{limited, healthy})
	hookCalls := 0
	exec.OnRateLimited(func(name string) {
		hookCalls++
		exec.DisableProvider(name)
	})

	ctx := context.Background()
	for _, item := range items(6) {
		exec.Submit(ctx, item)
	}
	finalized := exec.Drain(ctx)

	if hookCalls != 1 {
		t.Errorf("hook fired %d times, want 1", hookCalls)
	}
	if len(finalized) != 6 {
		t.Fatalf("finalized = %d, want 6", len(finalized))
	}
	for _, state := range finalized {
		got := false
		for _, r := range state.Results {
			if r.Source == "healthy" {
				got = true
			}
		}
		if !got {
			t.Errorf("item %s missing healthy provider result", state.Item.Title)
		}
	}
}

func TestSubmitWithNoActiveProvidersFinalizesImmediately(t *testing.T) {
	exec := New(testConfig(), nil)
	state := exec.Submit(context.Background(), items(1)[0])
	if !state.Finalized {
		t.Fatal("item with no providers must finalize at submission")
	}
	if len(state.Results) != 0 || len(state.Failures) != 0 {
		t.Error("empty item must carry no results or failures")
	}
}

func TestPendingPromotionPreservesSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []int

	one := &fakeClient{
		name: "one",
		fetch: func(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
			mu.Lock()
			order = append(order, item.LibraryID)
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			return okResult("one"), nil
		},
	}

	cfg := testConfig()
	cfg.MaxPerProvider = 1
	exec := New(cfg, []provider.Client{one})
	ctx := context.Background()

	for _, item := range items(5) {
		exec.Submit(ctx, item)
	}
	exec.Drain(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 5 {
		t.Fatalf("submissions = %d, want 5", len(order))
	}
	for i, id := range order {
		if id != i+1 {
			t.Fatalf("submission order = %v, want items in order", order)
		}
	}
}
