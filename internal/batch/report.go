// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package batch

import (
	"time"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/models"
)

// reportTTL keeps run reports around for a month of inspection.
const reportTTL = 30 * 24 * time.Hour

const latestReportKey = "report:latest"

// ReportStore persists batch run reports in the aggregation cache.
type ReportStore struct {
	bucket *cache.Bucket
}

// NewReportStore wraps the aggregation bucket for report persistence.
func NewReportStore(bucket *cache.Bucket) *ReportStore {
	return &ReportStore{bucket: bucket}
}

// Save stores the report under its run id and as the latest report.
func (s *ReportStore) Save(stats *models.BatchStats) error {
	if err := s.bucket.Put("report:"+stats.RunID, cache.KindBatchReport, stats, reportTTL); err != nil {
		return err
	}
	return s.bucket.Put(latestReportKey, cache.KindBatchReport, stats, reportTTL)
}

// Latest returns the most recent run report, or nil when none exists.
func (s *ReportStore) Latest() (*models.BatchStats, error) {
	var stats models.BatchStats
	hit, err := s.bucket.Get(latestReportKey, cache.KindBatchReport, &stats)
	if err != nil || !hit {
		return nil, err
	}
	return &stats, nil
}

// ByRunID returns the report for one run, or nil when unknown.
func (s *ReportStore) ByRunID(runID string) (*models.BatchStats, error) {
	var stats models.BatchStats
	hit, err := s.bucket.Get("report:"+runID, cache.KindBatchReport, &stats)
	if err != nil || !hit {
		return nil, err
	}
	return &stats, nil
}
