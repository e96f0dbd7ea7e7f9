// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"fmt"
	"time"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/models"
)

// cachedResponse is the payload each adapter stores in its provider
// response cache: the already-normalized ratings for one item.
type cachedResponse struct {
	Ratings map[string]models.RatingValue `json:"ratings"`
}

// responseCache is the per-provider response cache consulted before any
// network call. It is distinct from the aggregation cache: the key space
// is provider+item, and the payload is a single provider's answer.
type responseCache struct {
	provider string
	bucket   *cache.Bucket
	maxAge   time.Duration // upper bound for computed TTLs; 0 disables reads
}

// newResponseCache wraps the provider bucket for one adapter.
// maxAgeDays of 0 disables cache reads entirely (writes still happen,
// so re-enabling the cache later has warm data).
func newResponseCache(provider string, bucket *cache.Bucket, maxAgeDays int) *responseCache {
	return &responseCache{
		provider: provider,
		bucket:   bucket,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
	}
}

func (c *responseCache) key(kind models.MediaKind, id string) string {
	return fmt.Sprintf("%s:%s:%s", c.provider, kind, id)
}

// get returns the cached normalized ratings for the item, or nil.
func (c *responseCache) get(kind models.MediaKind, id string) map[string]models.RatingValue {
	if c == nil || c.bucket == nil || c.maxAge <= 0 || id == "" {
		return nil
	}

	var resp cachedResponse
	hit, err := c.bucket.Get(c.key(kind, id), cache.KindProviderResponse, &resp)
	if err != nil {
		logging.Warn().Str("provider", c.provider).Err(err).Msg("Provider cache read failed")
		return nil
	}
	if !hit {
		return nil
	}
	return resp.Ratings
}

// put stores normalized ratings with a lifecycle-aware TTL, capped at
// the configured maximum age.
func (c *responseCache) put(kind models.MediaKind, id string, ratings map[string]models.RatingValue, hints cache.LifecycleHints) {
	if c == nil || c.bucket == nil || id == "" || len(ratings) == 0 {
		return
	}

	ttl := cache.ComputeTTL(time.Now(), hints)
	if c.maxAge > 0 && ttl > c.maxAge {
		ttl = c.maxAge
	}

	err := c.bucket.Put(c.key(kind, id), cache.KindProviderResponse, cachedResponse{Ratings: ratings}, ttl)
	if err != nil {
		logging.Warn().Str("provider", c.provider).Err(err).Msg("Provider cache write failed")
	}
}
