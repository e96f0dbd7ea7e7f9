// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package supervisor

import (
	"context"
	"time"

	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
)

// GarbageCollector is the cache maintenance surface the janitor drives.
type GarbageCollector interface {
	RunGC() error
}

// JanitorService periodically reclaims space from the cache store.
// Expired entries stop being served the moment they expire; this only
// compacts the value log underneath them.
type JanitorService struct {
	store    GarbageCollector
	interval time.Duration
}

// NewJanitorService builds the janitor with the given sweep interval.
func NewJanitorService(store GarbageCollector, interval time.Duration) *JanitorService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &JanitorService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (j *JanitorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			metrics.CacheJanitorSweeps.Inc()
			if err := j.store.RunGC(); err != nil {
				logging.Debug().Err(err).Msg("Cache value log sweep found nothing to reclaim")
			}
		}
	}
}

// String implements fmt.Stringer for suture's event log.
func (j *JanitorService) String() string { return "cache-janitor" }
