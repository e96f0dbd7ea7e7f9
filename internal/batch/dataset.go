// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/dataset"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/merge"
	"github.com/tomtom215/criticus/internal/metrics"
	"github.com/tomtom215/criticus/internal/models"
)

// progressSaveEvery bounds how much work a resumed dataset sweep can
// repeat after an interruption.
const progressSaveEvery = 100

// progressTTL keeps sweep progress across restarts but lets abandoned
// sweeps age out.
const progressTTL = 14 * 24 * time.Hour

// datasetProgress is the persisted resumable state of one sweep. It is
// keyed by dataset snapshot date, so a fresh snapshot restarts the
// sweep from zero.
type datasetProgress struct {
	Snapshot  string       `json:"snapshot"`
	Processed map[int]bool `json:"processed"`
}

type progressStore struct {
	bucket *cache.Bucket
}

func newProgressStore(bucket *cache.Bucket) *progressStore {
	return &progressStore{bucket: bucket}
}

func progressKey(kind models.MediaKind, snapshot string) string {
	return fmt.Sprintf("dataset_progress:%s:%s", kind, snapshot)
}

func (p *progressStore) load(kind models.MediaKind, snapshot string) *datasetProgress {
	prog := &datasetProgress{Snapshot: snapshot, Processed: make(map[int]bool)}
	if p == nil || p.bucket == nil {
		return prog
	}
	if _, err := p.bucket.Get(progressKey(kind, snapshot), cache.KindImportProgress, prog); err != nil {
		logging.Warn().Err(err).Msg("Dataset sweep progress unreadable, starting over")
	}
	if prog.Processed == nil {
		prog.Processed = make(map[int]bool)
	}
	return prog
}

func (p *progressStore) save(kind models.MediaKind, prog *datasetProgress) {
	if p == nil || p.bucket == nil {
		return
	}
	if err := p.bucket.Put(progressKey(kind, prog.Snapshot), cache.KindImportProgress, prog, progressTTL); err != nil {
		logging.Warn().Err(err).Msg("Dataset sweep progress not persisted")
	}
}

func (p *progressStore) clear(kind models.MediaKind, snapshot string) {
	if p == nil || p.bucket == nil {
		return
	}
	if err := p.bucket.Delete(progressKey(kind, snapshot)); err != nil {
		logging.Warn().Err(err).Msg("Dataset sweep progress not cleared")
	}
}

// DatasetStore is the lookup surface the dataset sweep needs.
type DatasetStore interface {
	Lookup(ctx context.Context, imdbID string) (*dataset.Rating, error)
	SnapshotDate(ctx context.Context) (time.Time, error)
}

// datasetStore is injected by the command layer; nil means dataset
// mode is unavailable.
var _ DatasetStore = (*dataset.Store)(nil)

// WithDataset attaches the bulk dataset store for ModeDataset runs.
func (r *Runner) WithDataset(store DatasetStore) *Runner {
	r.dataset = store
	return r
}

// runDataset sweeps the library against the local dataset. No
// scheduler is involved; the dataset is local, so the only pacing is
// the library write rate. Progress is checkpointed so an interrupted
// sweep resumes where it stopped, as long as the snapshot is the same.
func (r *Runner) runDataset(ctx context.Context, kind models.MediaKind, items []models.ItemRecord, stats *models.BatchStats) error {
	if r.dataset == nil {
		return fmt.Errorf("dataset mode requires an imported dataset")
	}

	snapDate, err := r.dataset.SnapshotDate(ctx)
	if err != nil {
		return err
	}
	if snapDate.IsZero() {
		return fmt.Errorf("dataset mode requires an imported dataset")
	}
	snapshot := snapDate.Format("2006-01-02")

	prog := r.progress.load(kind, snapshot)
	if n := len(prog.Processed); n > 0 {
		logging.Info().Int("items", n).Str("snapshot", snapshot).Msg("Resuming dataset sweep")
	}

	sinceSave := 0
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		item := &items[i]
		if prog.Processed[item.LibraryID] {
			continue
		}

		r.sweepItem(ctx, kind, item, stats)

		prog.Processed[item.LibraryID] = true
		sinceSave++
		if sinceSave >= progressSaveEvery {
			r.progress.save(kind, prog)
			sinceSave = 0
		}
	}

	if ctx.Err() != nil {
		r.progress.save(kind, prog)
	} else {
		r.progress.clear(kind, snapshot)
	}
	return nil
}

// sweepItem reconciles one item against the dataset.
func (r *Runner) sweepItem(ctx context.Context, kind models.MediaKind, item *models.ItemRecord, stats *models.BatchStats) {
	if item.IDs.IMDB == "" {
		stats.Skipped++
		metrics.BatchItemsProcessed.WithLabelValues("skipped").Inc()
		return
	}

	rating, err := r.dataset.Lookup(ctx, item.IDs.IMDB)
	if err != nil {
		logging.Warn().Str("title", item.Title).Err(err).Msg("Dataset lookup failed")
		stats.Source("dataset").Failed++
		stats.Failed++
		metrics.BatchItemsProcessed.WithLabelValues("failed").Inc()
		return
	}
	if rating == nil || rating.Votes <= 0 {
		stats.Skipped++
		metrics.BatchItemsProcessed.WithLabelValues("skipped").Inc()
		return
	}
	stats.Source("dataset").Fetched++

	merged := map[string]merge.Winner{
		"imdb": {
			RatingValue: models.RatingValue{Rating: rating.Rating, Votes: rating.Votes},
			Provider:    "dataset",
		},
	}
	final, changes := merge.PrepareFinal(item.Title, item.Stored, merged, r.cfg.Ratings.DefaultSource)

	if !changes.Dirty() {
		stats.Skipped++
		metrics.BatchItemsProcessed.WithLabelValues("skipped").Inc()
		return
	}

	if err := r.library.SetRatings(ctx, kind, item.LibraryID, final); err != nil {
		logging.Error().Str("title", item.Title).Err(err).Msg("Ratings write-back failed")
		stats.Failed++
		metrics.BatchItemsProcessed.WithLabelValues("failed").Inc()
		return
	}

	stats.Updated++
	stats.RatingsAdded += changes.Added
	stats.RatingsUpdated += changes.Updated
	metrics.BatchItemsProcessed.WithLabelValues("updated").Inc()
}
