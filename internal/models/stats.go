// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package models

import "time"

// SourceStats counts per-provider outcomes within one batch run.
type SourceStats struct {
	Fetched int `json:"fetched"`
	Failed  int `json:"failed"`
}

// ItemDetail is a compact record of what changed for one item. The
// batch report keeps only the most recent entries (ring of 20) to
// bound report size on large libraries.
type ItemDetail struct {
	Title          string   `json:"title"`
	Year           int      `json:"year,omitempty"`
	SourcesUsed    []string `json:"sources_used,omitempty"`
	RatingsAdded   int      `json:"ratings_added"`
	RatingsUpdated int      `json:"ratings_updated"`
	AddedDetails   []string `json:"added_details,omitempty"`
	UpdatedDetails []string `json:"updated_details,omitempty"`
}

// BatchStats is the structured report returned by a batch run.
// Failures never abort a batch; they accumulate here instead.
type BatchStats struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Kind       MediaKind `json:"kind"`
	TotalItems int       `json:"total_items"`

	Updated   int  `json:"updated"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Retried   int  `json:"retried,omitempty"`
	Cancelled bool `json:"cancelled"`

	RatingsAdded   int `json:"ratings_added"`
	RatingsUpdated int `json:"ratings_updated"`

	PerSource   map[string]*SourceStats `json:"per_source,omitempty"`
	ItemDetails []ItemDetail            `json:"item_details,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// NewBatchStats returns an initialized BatchStats for one run.
func NewBatchStats(runID, mode string, kind MediaKind, total int) *BatchStats {
	return &BatchStats{
		RunID:      runID,
		Mode:       mode,
		Kind:       kind,
		TotalItems: total,
		PerSource:  make(map[string]*SourceStats),
	}
}

// Source returns the per-source counter for name, creating it on first use.
func (s *BatchStats) Source(name string) *SourceStats {
	st, ok := s.PerSource[name]
	if !ok {
		st = &SourceStats{}
		s.PerSource[name] = st
	}
	return st
}

const itemDetailRingSize = 20

// AddDetail appends an item detail, keeping only the newest entries.
func (s *BatchStats) AddDetail(d ItemDetail) {
	s.ItemDetails = append(s.ItemDetails, d)
	if len(s.ItemDetails) > itemDetailRingSize {
		s.ItemDetails = s.ItemDetails[1:]
	}
}
