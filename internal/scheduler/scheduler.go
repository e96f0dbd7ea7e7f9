// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package scheduler runs provider fetches for a batch of items under
// two concurrency bounds: a global cap on jobs in flight and a per
// provider cap. Items are finalized exactly once, either when every
// active provider has answered or when the per item timeout elapses;
// results arriving after finalization are discarded.
//
// All executor state is owned by the caller's collection loop. Worker
// goroutines only perform the fetch and deliver the outcome on a
// channel; counters and item states are touched exclusively between
// Submit and Collect calls, so none of them need locking. The cost is
// that freed capacity becomes visible no later than the next poll,
// which the poll interval bounds.
package scheduler

import (
	"context"
	"time"

	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/provider"
)

// FinalizeReason records why an item was frozen.
type FinalizeReason string

// Finalize reasons.
const (
	FinalizeComplete  FinalizeReason = "complete"
	FinalizeTimeout   FinalizeReason = "timeout"
	FinalizeCancelled FinalizeReason = "cancelled"
)

// Failure is one non-success provider outcome recorded on an item.
type Failure struct {
	Provider string
	Kind     provider.ErrorKind
	Reason   string
}

// ItemState accumulates provider outcomes for one item. Once Finalized
// is set nothing mutates the collected results again.
type ItemState struct {
	Item     *models.ItemRecord
	Results  []*models.ProviderResult
	Failures []Failure

	Finalized bool
	Reason    FinalizeReason

	deadline  time.Time
	pending   []string
	submitted map[string]struct{}
	completed map[string]struct{}
	drained   bool
}

// RetryableProviders lists the providers whose failure on this item is
// eligible for a second pass.
func (s *ItemState) RetryableProviders() []string {
	var out []string
	for _, f := range s.Failures {
		if f.Kind == provider.KindRetryable {
			out = append(out, f.Provider)
		}
	}
	return out
}

// open reports whether any provider work remains for this item.
func (s *ItemState) open() bool {
	return len(s.pending) > 0 || len(s.submitted) > len(s.completed)
}

// jobResult is what a worker goroutine delivers back to the collection
// loop.
type jobResult struct {
	state    *ItemState
	provider string
	result   *models.ProviderResult
	err      error
}

// Executor drives a batch of fetch jobs under the configured bounds.
// It is not safe for concurrent use; one goroutine owns it for the
// lifetime of a batch.
type Executor struct {
	cfg     config.SchedulerConfig
	clients map[string]provider.Client
	active  map[string]bool

	inFlight    int
	perProvider map[string]int

	results chan jobResult
	items   []*ItemState

	// onRateLimited, when set, is invoked from the collection loop the
	// first time each provider reports quota exhaustion.
	onRateLimited func(providerName string)
	limitSeen     map[string]bool
}

// New builds an executor over the given provider clients.
func New(cfg config.SchedulerConfig, clients []provider.Client) *Executor {
	byName := make(map[string]provider.Client, len(clients))
	active := make(map[string]bool, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
		active[c.Name()] = true
	}
	return &Executor{
		cfg:         cfg,
		clients:     byName,
		active:      active,
		perProvider: make(map[string]int),
		results:     make(chan jobResult, cfg.MaxWorkers),
		limitSeen:   make(map[string]bool),
	}
}

// OnRateLimited registers the policy hook for provider quota
// exhaustion. It fires at most once per provider, from the collection
// loop.
func (e *Executor) OnRateLimited(fn func(providerName string)) {
	e.onRateLimited = fn
}

// DisableProvider removes a provider from the active set. Jobs already
// in flight for it run to completion; queued pending entries are
// resolved as completed-without-result at the next promotion.
func (e *Executor) DisableProvider(name string) {
	if e.active[name] {
		e.active[name] = false
		logging.Warn().Str("provider", name).Msg("Provider disabled for remainder of run")
	}
}

// ActiveProviders returns the names of providers still receiving jobs.
func (e *Executor) ActiveProviders() []string {
	var out []string
	for name, on := range e.active {
		if on {
			out = append(out, name)
		}
	}
	return out
}

// InFlight returns the number of jobs currently in flight.
func (e *Executor) InFlight() int { return e.inFlight }

// Submit creates the item's state and starts jobs for every active
// provider with spare capacity; the rest queue as pending on the item.
func (e *Executor) Submit(ctx context.Context, item *models.ItemRecord) *ItemState {
	state := &ItemState{
		Item:      item,
		deadline:  time.Now().Add(e.cfg.ItemTimeout),
		submitted: make(map[string]struct{}),
		completed: make(map[string]struct{}),
	}
	e.items = append(e.items, state)

	for name := range e.clients {
		if !e.active[name] {
			continue
		}
		if e.canSubmit(name) {
			e.launch(ctx, state, name)
		} else {
			state.pending = append(state.pending, name)
		}
	}

	if !state.open() {
		// No active providers at all: finalize immediately so the
		// batch cannot stall on an empty item.
		e.finalize(state, FinalizeComplete)
	}
	return state
}

func (e *Executor) canSubmit(providerName string) bool {
	return e.inFlight < e.cfg.MaxWorkers && e.perProvider[providerName] < e.cfg.MaxPerProvider
}

// launch starts one fetch job. Counters are incremented here and
// decremented only in the collection loop when the outcome is drained.
func (e *Executor) launch(ctx context.Context, state *ItemState, providerName string) {
	e.inFlight++
	e.perProvider[providerName]++
	state.submitted[providerName] = struct{}{}
	metrics.JobsInFlight.Set(float64(e.inFlight))
	metrics.ProviderJobsInFlight.WithLabelValues(providerName).Inc()

	client := e.clients[providerName]
	go func() {
		jobCtx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
		defer cancel()

		result, err := client.FetchRatings(jobCtx, state.Item)
		e.results <- jobResult{state: state, provider: providerName, result: result, err: err}
	}()
}

// Collect waits up to pollTimeout for at least one outstanding job to
// finish, drains everything already available, expires overdue items,
// promotes queued pending work into freed capacity, and returns any
// items that became finalized. It never blocks past pollTimeout, which
// makes it the cooperative checkpoint where the caller observes
// cancellation.
func (e *Executor) Collect(ctx context.Context, pollTimeout time.Duration) []*ItemState {
	timer := time.NewTimer(pollTimeout)
	defer timer.Stop()

	select {
	case r := <-e.results:
		e.handle(r)
	case <-timer.C:
	case <-ctx.Done():
	}

	// Drain without blocking: anything else that finished during the
	// wait releases its capacity in the same poll.
	for {
		select {
		case r := <-e.results:
			e.handle(r)
		default:
			return e.afterPoll(ctx)
		}
	}
}

// afterPoll runs the bookkeeping that happens once per poll boundary.
func (e *Executor) afterPoll(ctx context.Context) []*ItemState {
	now := time.Now()
	for _, state := range e.items {
		if !state.Finalized && now.After(state.deadline) {
			e.finalize(state, FinalizeTimeout)
		}
	}

	if ctx.Err() == nil {
		e.promotePending(ctx)
	}

	var finalized []*ItemState
	for _, state := range e.items {
		if state.Finalized && !state.drained {
			state.drained = true
			finalized = append(finalized, state)
		}
	}
	return finalized
}

// handle routes one job outcome. In-flight counters are released here
// regardless of whether the item still wants the result.
func (e *Executor) handle(r jobResult) {
	e.inFlight--
	e.perProvider[r.provider]--
	metrics.JobsInFlight.Set(float64(e.inFlight))
	metrics.ProviderJobsInFlight.WithLabelValues(r.provider).Dec()

	if r.state.Finalized {
		metrics.LateResultsDiscarded.Inc()
		logging.Debug().
			Str("provider", r.provider).
			Str("title", r.state.Item.Title).
			Msg("Result arrived after finalization, discarded")
		return
	}

	r.state.completed[r.provider] = struct{}{}

	switch {
	case r.err == nil:
		if r.result != nil && len(r.result.Ratings) > 0 {
			r.state.Results = append(r.state.Results, r.result)
		}

	default:
		kind := provider.Classify(r.err)
		r.state.Failures = append(r.state.Failures, Failure{
			Provider: r.provider,
			Kind:     kind,
			Reason:   r.err.Error(),
		})
		metrics.ProviderFetchOutcomes.WithLabelValues(r.provider, kind.String()).Inc()

		if kind == provider.KindRateLimited && !e.limitSeen[r.provider] {
			e.limitSeen[r.provider] = true
			logging.Warn().Str("provider", r.provider).Msg("Provider reported quota exhaustion")
			if e.onRateLimited != nil {
				e.onRateLimited(r.provider)
			}
		}
	}

	if !r.state.open() {
		e.finalize(r.state, FinalizeComplete)
	}
}

// promotePending moves queued provider work into freed capacity,
// scanning items in submission order.
func (e *Executor) promotePending(ctx context.Context) {
	for _, state := range e.items {
		if state.Finalized || len(state.pending) == 0 {
			continue
		}

		kept := state.pending[:0]
		for _, name := range state.pending {
			switch {
			case !e.active[name]:
				// Disabled mid-run: resolve so the item can finalize.
				state.completed[name] = struct{}{}
				state.submitted[name] = struct{}{}
			case e.canSubmit(name):
				e.launch(ctx, state, name)
			default:
				kept = append(kept, name)
			}
		}
		state.pending = kept

		if !state.open() {
			e.finalize(state, FinalizeComplete)
		}
	}
}

// finalize freezes an item. Providers still pending or in flight are
// recorded as timed-out retryable failures so a later pass can retry
// them; the in-flight jobs themselves run to completion and are
// discarded on arrival.
func (e *Executor) finalize(state *ItemState, reason FinalizeReason) {
	if state.Finalized {
		return
	}

	for _, name := range state.pending {
		state.Failures = append(state.Failures, Failure{
			Provider: name,
			Kind:     provider.KindRetryable,
			Reason:   "not submitted before finalization",
		})
	}
	state.pending = nil

	for name := range state.submitted {
		if _, done := state.completed[name]; !done {
			state.Failures = append(state.Failures, Failure{
				Provider: name,
				Kind:     provider.KindRetryable,
				Reason:   "no response before finalization",
			})
			state.completed[name] = struct{}{}
		}
	}

	state.Finalized = true
	state.Reason = reason
	metrics.ItemsFinalized.WithLabelValues(string(reason)).Inc()

	if reason != FinalizeComplete {
		logging.Debug().
			Str("title", state.Item.Title).
			Str("reason", string(reason)).
			Int("results", len(state.Results)).
			Msg("Item finalized before all providers answered")
	}
}

// Drain finalizes every remaining item. With a live context it keeps
// polling until all items complete naturally or time out; with a
// cancelled context it freezes everything immediately, marking
// incomplete providers as cancelled work, so partial progress is kept.
func (e *Executor) Drain(ctx context.Context) []*ItemState {
	var finalized []*ItemState

	for e.openCount() > 0 && ctx.Err() == nil {
		finalized = append(finalized, e.Collect(ctx, e.cfg.PollInterval)...)
	}

	if ctx.Err() != nil {
		for _, state := range e.items {
			if !state.Finalized {
				e.finalize(state, FinalizeCancelled)
			}
		}
	}

	// Release capacity for jobs that were in flight at cancellation.
	for e.inFlight > 0 {
		e.handle(<-e.results)
	}

	for _, state := range e.items {
		if state.Finalized && !state.drained {
			state.drained = true
			finalized = append(finalized, state)
		}
	}
	return finalized
}

func (e *Executor) openCount() int {
	n := 0
	for _, state := range e.items {
		if !state.Finalized {
			n++
		}
	}
	return n
}
