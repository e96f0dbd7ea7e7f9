// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"sync"
	"time"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/logging"
)

// usageTTL keeps daily usage records around long enough to survive a
// midnight rollover plus one day of inspection.
const usageTTL = 48 * time.Hour

// usageRecord is the persisted per-(provider, day) request accounting.
type usageRecord struct {
	Count    int  `json:"count"`
	LimitHit bool `json:"limit_hit"`
}

// UsageTracker persists per-provider daily request counts and
// limit-hit flags in the aggregation cache. It survives process
// restarts so a quota exhausted in the morning is still known to an
// afternoon run.
type UsageTracker struct {
	mu     sync.Mutex
	bucket *cache.Bucket
}

// NewUsageTracker creates a tracker over the aggregation cache bucket.
func NewUsageTracker(bucket *cache.Bucket) *UsageTracker {
	return &UsageTracker{bucket: bucket}
}

func usageKey(provider string) string {
	return "usage:" + provider + ":" + time.Now().Format("2006-01-02")
}

// Increment records one request for the provider today and returns the
// new count plus whether the daily limit was already marked hit.
func (t *UsageTracker) Increment(provider string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := usageKey(provider)
	var rec usageRecord
	if _, err := t.bucket.Get(key, cache.KindUsageRecord, &rec); err != nil {
		logging.Warn().Str("provider", provider).Err(err).Msg("Usage read failed")
	}

	rec.Count++
	if err := t.bucket.Put(key, cache.KindUsageRecord, rec, usageTTL); err != nil {
		logging.Warn().Str("provider", provider).Err(err).Msg("Usage write failed")
	}
	return rec.Count, rec.LimitHit
}

// MarkLimitHit flags the provider's quota as exhausted for today.
func (t *UsageTracker) MarkLimitHit(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := usageKey(provider)
	var rec usageRecord
	if _, err := t.bucket.Get(key, cache.KindUsageRecord, &rec); err != nil {
		logging.Warn().Str("provider", provider).Err(err).Msg("Usage read failed")
	}

	rec.LimitHit = true
	if err := t.bucket.Put(key, cache.KindUsageRecord, rec, usageTTL); err != nil {
		logging.Warn().Str("provider", provider).Err(err).Msg("Usage write failed")
	}
}

// LimitHit reports whether the provider's quota was marked exhausted
// today.
func (t *UsageTracker) LimitHit(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec usageRecord
	if _, err := t.bucket.Get(usageKey(provider), cache.KindUsageRecord, &rec); err != nil {
		return false
	}
	return rec.LimitHit
}
