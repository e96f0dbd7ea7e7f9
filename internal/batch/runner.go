// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package batch orchestrates one run over the library: list items, fan
// their fetches out through the scheduler, merge what comes back, and
// write changed records to the library. Failures accumulate into the
// run report; nothing a single item does can abort the batch.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/merge"
	"github.com/tomtom215/criticus/internal/metrics"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/provider"
	"github.com/tomtom215/criticus/internal/scheduler"
)

// Mode selects the batch path.
type Mode string

// Batch modes.
const (
	// ModeMultiSource fans out to all active network providers.
	ModeMultiSource Mode = "multi_source"
	// ModeDataset sweeps the library against the local bulk dataset
	// only, with resumable progress.
	ModeDataset Mode = "dataset"
)

// Library is the subset of the host library client the runner needs.
type Library interface {
	GetItems(ctx context.Context, kind models.MediaKind) ([]models.ItemRecord, error)
	SetRatings(ctx context.Context, kind models.MediaKind, libraryID int, ratings map[string]models.FinalRating) error
}

// IDResolver resolves a provider-native id from an IMDb id. The TMDb
// adapter provides this for items the library only knows by IMDb id.
type IDResolver interface {
	FindByIMDB(ctx context.Context, imdbID string, kind models.MediaKind) (string, error)
}

// Runner executes batch runs.
type Runner struct {
	cfg      *config.Config
	library  Library
	clients  []provider.Client
	resolver IDResolver
	dataset  DatasetStore
	reports  *ReportStore
	progress *progressStore
}

// New builds a runner. resolver may be nil when no TMDb client is
// active; store may be nil in tests to skip report persistence.
func New(cfg *config.Config, lib Library, clients []provider.Client, resolver IDResolver, store *cache.Store) *Runner {
	r := &Runner{
		cfg:      cfg,
		library:  lib,
		clients:  clients,
		resolver: resolver,
	}
	if store != nil {
		bucket := store.Bucket(cache.AggregateCache)
		r.reports = NewReportStore(bucket)
		r.progress = newProgressStore(bucket)
	}
	return r
}

// Reports exposes the run report store, or nil when the runner was
// built without persistence.
func (r *Runner) Reports() *ReportStore { return r.reports }

// Run executes one batch over all library items of the given kind and
// returns the structured report. The context is the cancellation flag:
// cancelling it stops new submissions at the next poll boundary and
// finalizes in-flight items with partial progress kept.
func (r *Runner) Run(ctx context.Context, kind models.MediaKind, mode Mode) (*models.BatchStats, error) {
	runID := uuid.NewString()
	start := time.Now()
	log := logging.With().Str("run_id", runID).Str("mode", string(mode)).Str("kind", string(kind)).Logger()
	log.Info().Msg("Batch run started")

	items, err := r.library.GetItems(ctx, kind)
	if err != nil {
		metrics.BatchRuns.WithLabelValues(string(mode), "failed").Inc()
		return nil, err
	}

	stats := models.NewBatchStats(runID, string(mode), kind, len(items))

	switch mode {
	case ModeDataset:
		err = r.runDataset(ctx, kind, items, stats)
	default:
		err = r.runMultiSource(ctx, kind, items, stats)
	}
	if err != nil {
		metrics.BatchRuns.WithLabelValues(string(mode), "failed").Inc()
		return nil, err
	}

	stats.Cancelled = ctx.Err() != nil
	stats.Elapsed = time.Since(start)

	state := "completed"
	if stats.Cancelled {
		state = "cancelled"
	}
	metrics.BatchRuns.WithLabelValues(string(mode), state).Inc()

	if r.reports != nil {
		if err := r.reports.Save(stats); err != nil {
			log.Warn().Err(err).Msg("Batch report not persisted")
		}
	}

	log.Info().
		Int("total", stats.TotalItems).
		Int("updated", stats.Updated).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Bool("cancelled", stats.Cancelled).
		Dur("elapsed", stats.Elapsed).
		Msg("Batch run finished")
	return stats, nil
}

// runMultiSource is the fan-out path through the scheduler.
func (r *Runner) runMultiSource(ctx context.Context, kind models.MediaKind, items []models.ItemRecord, stats *models.BatchStats) error {
	retry, stopRun := r.runPass(ctx, kind, items, stats)

	if r.cfg.Scheduler.RetryFailed && len(retry) > 0 && !stopRun && ctx.Err() == nil {
		logging.Info().Int("items", len(retry)).Msg("Retry pass for items with transient failures")
		stats.Retried = len(retry)
		r.runPass(ctx, kind, retry, stats)
	}
	return nil
}

// runPass submits the given items through a fresh executor and
// processes each item as it finalizes. It returns the items that ended
// the pass carrying retryable failures, plus whether policy demanded
// the whole run stop.
func (r *Runner) runPass(ctx context.Context, kind models.MediaKind, items []models.ItemRecord, stats *models.BatchStats) ([]models.ItemRecord, bool) {
	batchCtx, cancelBatch := context.WithCancel(ctx)
	defer cancelBatch()

	var stopRun bool
	exec := scheduler.New(r.cfg.Scheduler, r.clients)
	exec.OnRateLimited(func(name string) {
		switch r.cfg.Scheduler.OnRateLimit {
		case config.RateLimitCancelRun:
			logging.Warn().Str("provider", name).Msg("Quota exhaustion aborts the run by policy")
			stopRun = true
			cancelBatch()
		case config.RateLimitCancelBatch:
			logging.Warn().Str("provider", name).Msg("Quota exhaustion cancels the batch by policy")
			cancelBatch()
		default:
			exec.DisableProvider(name)
		}
	})

	var retry []models.ItemRecord

	process := func(finalized []*scheduler.ItemState) {
		for _, state := range finalized {
			if r.processItem(ctx, kind, state, stats) {
				retry = append(retry, *state.Item)
			}
		}
	}

	for i := range items {
		if batchCtx.Err() != nil {
			break
		}
		item := &items[i]
		r.resolveIDs(batchCtx, item)
		exec.Submit(batchCtx, item)
		process(exec.Collect(batchCtx, r.cfg.Scheduler.SubmitPollInterval))
	}

	process(exec.Drain(batchCtx))
	return retry, stopRun
}

// resolveIDs fills in a missing TMDb id from the IMDb id when a
// resolver is available. Resolution failures are not item failures;
// the item just proceeds with the identifiers it has.
func (r *Runner) resolveIDs(ctx context.Context, item *models.ItemRecord) {
	if r.resolver == nil || item.IDs.TMDB != "" || item.IDs.IMDB == "" {
		return
	}
	id, err := r.resolver.FindByIMDB(ctx, item.IDs.IMDB, item.Kind)
	if err != nil {
		logging.Debug().Str("title", item.Title).Err(err).Msg("Identifier resolution failed")
		return
	}
	item.IDs.TMDB = id
}

// processItem merges one finalized item and writes it back when the
// record changed. It returns whether the item is a retry candidate.
func (r *Runner) processItem(ctx context.Context, kind models.MediaKind, state *scheduler.ItemState, stats *models.BatchStats) bool {
	item := state.Item

	for _, res := range state.Results {
		stats.Source(res.Source).Fetched++
	}
	for _, f := range state.Failures {
		stats.Source(f.Provider).Failed++
	}

	if len(state.Results) == 0 {
		stats.Skipped++
		metrics.BatchItemsProcessed.WithLabelValues("skipped").Inc()
		return len(state.RetryableProviders()) > 0
	}

	merged := merge.Merge(state.Results, r.cfg.Ratings.Priorities)
	final, changes := merge.PrepareFinal(item.Title, item.Stored, merged, r.cfg.Ratings.DefaultSource)

	if !changes.Dirty() {
		stats.Skipped++
		metrics.BatchItemsProcessed.WithLabelValues("skipped").Inc()
		return len(state.RetryableProviders()) > 0
	}

	if err := r.library.SetRatings(ctx, kind, item.LibraryID, final); err != nil {
		// Write failure counts against this item only, with no retry
		// within the same run.
		logging.Error().Str("title", item.Title).Err(err).Msg("Ratings write-back failed")
		stats.Failed++
		metrics.BatchItemsProcessed.WithLabelValues("failed").Inc()
		return false
	}

	stats.Updated++
	stats.RatingsAdded += changes.Added
	stats.RatingsUpdated += changes.Updated
	metrics.BatchItemsProcessed.WithLabelValues("updated").Inc()

	detail := models.ItemDetail{
		Title:          item.Title,
		Year:           item.Year,
		RatingsAdded:   changes.Added,
		RatingsUpdated: changes.Updated,
	}
	for _, res := range state.Results {
		detail.SourcesUsed = append(detail.SourcesUsed, res.Source)
	}
	stats.AddDetail(detail)

	// Freshen the item's view of its stored ratings so a retry pass
	// reconciles against what was just written.
	item.Stored = make(map[string]models.RatingValue, len(final))
	for key, v := range final {
		item.Stored[key] = models.RatingValue{Rating: v.Rating, Votes: v.Votes}
	}

	return len(state.RetryableProviders()) > 0
}
