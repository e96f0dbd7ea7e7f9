// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package metrics provides Prometheus instrumentation for:
//   - Provider fetch throughput, outcomes and latency
//   - Batch scheduler concurrency and finalization
//   - Adaptive cache efficiency
//   - Rate limiter stalls
//   - Host library write-backs
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider Metrics
	ProviderFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "criticus_provider_fetch_duration_seconds",
			Help:    "Duration of provider fetch calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderFetchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_provider_fetch_outcomes_total",
			Help: "Provider fetch outcomes by kind (ok, no_data, rate_limited, retryable)",
		},
		[]string{"provider", "outcome"},
	)

	// Scheduler Metrics
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "criticus_scheduler_jobs_in_flight",
			Help: "Fetch jobs currently in flight across the batch",
		},
	)

	ProviderJobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "criticus_scheduler_provider_jobs_in_flight",
			Help: "Fetch jobs currently in flight per provider",
		},
		[]string{"provider"},
	)

	ItemsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_scheduler_items_finalized_total",
			Help: "Items finalized, by reason (complete, timeout, cancelled)",
		},
		[]string{"reason"},
	)

	LateResultsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criticus_scheduler_late_results_discarded_total",
			Help: "Job results that arrived after item finalization and were discarded",
		},
	)

	// Rate Limiter Metrics
	RateLimiterWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_ratelimit_waits_total",
			Help: "Times a fetch had to wait for sliding-window admission",
		},
		[]string{"provider"},
	)

	RateLimiterWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_ratelimit_wait_seconds_total",
			Help: "Cumulative seconds spent waiting for admission",
		},
		[]string{"provider"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_cache_hits_total",
			Help: "Cache hits by logical cache (provider, aggregate)",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_cache_misses_total",
			Help: "Cache misses (absent or expired) by logical cache",
		},
		[]string{"cache"},
	)

	CacheCorrupt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_cache_corrupt_payloads_total",
			Help: "Cache payloads that failed decode and were treated as misses",
		},
		[]string{"cache"},
	)

	CacheJanitorSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criticus_cache_janitor_sweeps_total",
			Help: "Expired-entry sweeps performed by the cache janitor",
		},
	)

	// Merge Metrics
	RatingClampWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "criticus_merge_clamp_warnings_total",
			Help: "Ratings clamped into the 0-10 range during reconciliation",
		},
	)

	// Library Write-back Metrics
	LibraryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_library_writes_total",
			Help: "Ratings write-backs to the host library, by result (ok, failed)",
		},
		[]string{"result"},
	)

	// Batch Metrics
	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_batch_runs_total",
			Help: "Batch runs by mode and completion state (done, cancelled)",
		},
		[]string{"mode", "state"},
	)

	BatchItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criticus_batch_items_total",
			Help: "Batch item outcomes (updated, failed, skipped)",
		},
		[]string{"outcome"},
	)
)
