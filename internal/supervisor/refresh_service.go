// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package supervisor

import (
	"context"
	"time"

	"github.com/tomtom215/criticus/internal/batch"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/models"
)

// BatchRunner is the slice of the batch runner the refresh loop needs.
type BatchRunner interface {
	Run(ctx context.Context, kind models.MediaKind, mode batch.Mode) (*models.BatchStats, error)
}

// RefreshService runs a multi-source batch for each configured kind on
// a fixed interval. One failing run logs and waits for the next tick;
// the supervisor only restarts the service if the loop itself dies.
type RefreshService struct {
	runner   BatchRunner
	kinds    []models.MediaKind
	interval time.Duration

	// runOnStart triggers a refresh immediately instead of waiting a
	// full interval after startup.
	runOnStart bool
}

// NewRefreshService builds the periodic refresh worker.
func NewRefreshService(runner BatchRunner, kinds []models.MediaKind, interval time.Duration, runOnStart bool) *RefreshService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RefreshService{
		runner:     runner,
		kinds:      kinds,
		interval:   interval,
		runOnStart: runOnStart,
	}
}

// Serve implements suture.Service.
func (r *RefreshService) Serve(ctx context.Context) error {
	if r.runOnStart {
		r.refresh(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *RefreshService) refresh(ctx context.Context) {
	for _, kind := range r.kinds {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.runner.Run(ctx, kind, batch.ModeMultiSource); err != nil {
			logging.Error().Str("kind", string(kind)).Err(err).Msg("Scheduled refresh failed")
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (r *RefreshService) String() string { return "refresh-loop" }
