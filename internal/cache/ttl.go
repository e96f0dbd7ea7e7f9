// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package cache

import (
	"math/rand/v2"
	"strings"
	"time"
)

// TTL tiers. Volatile content is re-checked daily; finished content
// drifts slowly enough that a weekly refresh suffices.
const (
	ttlVolatile  = 24 * time.Hour
	ttlOngoing   = 72 * time.Hour
	ttlSettling  = 120 * time.Hour
	ttlStable    = 168 * time.Hour
	ttlMinimum   = time.Hour
	jitterFactor = 0.10
)

// LifecycleHints carry what is known about the content's lifecycle at
// cache-write time. All fields are optional; missing hints degrade to
// conservative TTLs.
type LifecycleHints struct {
	// NextScheduled is the air date of the next episode whose data is
	// still incomplete upstream. When set and in the future, the cache
	// entry expires exactly when new data should exist.
	NextScheduled *time.Time

	// Status is the provider's lifecycle status string for shows
	// ("Ended", "Canceled", "Returning Series", ...).
	Status string

	// ReleaseDate is the one-shot release date, used for age-based TTL
	// when no status is known (movies).
	ReleaseDate *time.Time

	// LibraryMember is false for ad hoc lookups; those are always
	// treated as volatile regardless of the other hints.
	LibraryMember bool
}

// statusFinished reports whether a lifecycle status means the content
// is complete and stable.
func statusFinished(status string) bool {
	switch strings.ToLower(status) {
	case "ended", "canceled", "cancelled":
		return true
	}
	return false
}

// ComputeTTL derives the time-to-live for a cache entry from lifecycle
// hints, evaluated at the given reference time. Priority order:
//
//  1. Future next-scheduled date: expire when new data should exist.
//  2. Finished status: stable content, weekly refresh.
//  3. Any other known status: ongoing but unscheduled.
//  4. Content age (one-shot releases).
//  5. No information: assume volatile.
//
// Every result carries +/-10% jitter so that a large library imported
// in one pass does not expire en masse.
func ComputeTTL(now time.Time, hints LifecycleHints) time.Duration {
	return jitter(baseTTL(now, hints))
}

// baseTTL is the un-jittered policy, split out for exact testing.
func baseTTL(now time.Time, hints LifecycleHints) time.Duration {
	if !hints.LibraryMember {
		return ttlVolatile
	}

	if hints.NextScheduled != nil && hints.NextScheduled.After(now) {
		ttl := hints.NextScheduled.Sub(now)
		if ttl < ttlMinimum {
			ttl = ttlMinimum
		}
		return ttl
	}

	if hints.Status != "" {
		if statusFinished(hints.Status) {
			return ttlStable
		}
		return ttlOngoing
	}

	if hints.ReleaseDate != nil {
		age := now.Sub(*hints.ReleaseDate)
		switch {
		case age < 90*24*time.Hour:
			return ttlVolatile
		case age < 180*24*time.Hour:
			return ttlOngoing
		case age < 365*24*time.Hour:
			return ttlSettling
		default:
			return ttlStable
		}
	}

	return ttlVolatile
}

// jitter spreads ttl uniformly across +/-10%.
func jitter(ttl time.Duration) time.Duration {
	f := 1 - jitterFactor + 2*jitterFactor*rand.Float64()
	return time.Duration(float64(ttl) * f)
}
