// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package merge resolves disagreeing provider answers into one rating
// record and reconciles it against what the library already stores.
package merge

import (
	"sort"

	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
	"github.com/tomtom215/criticus/internal/models"
)

// Winner is a merged rating value annotated with the provider whose
// answer won the key.
type Winner struct {
	models.RatingValue
	Provider string
}

// Merge resolves the collected provider results into one value per
// rating-source key. A key claimed by several providers goes to the
// provider with the higher trust priority; ties go to the value with
// more votes. Providers absent from the priority table rank lowest.
func Merge(results []*models.ProviderResult, priorities map[string]int) map[string]Winner {
	// Deterministic ordering: iterate providers from weakest to
	// strongest so the strongest claim lands last and wins. Equal
	// priorities are ordered by name so reruns are stable.
	ordered := make([]*models.ProviderResult, 0, len(results))
	for _, r := range results {
		if r != nil && len(r.Ratings) > 0 {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priorities[ordered[i].Source], priorities[ordered[j].Source]
		if pi != pj {
			return pi < pj
		}
		return ordered[i].Source < ordered[j].Source
	})

	merged := make(map[string]Winner)
	for _, result := range ordered {
		for key, value := range result.Ratings {
			current, exists := merged[key]
			if !exists {
				merged[key] = Winner{RatingValue: value, Provider: result.Source}
				continue
			}

			currentPrio := priorities[current.Provider]
			candidatePrio := priorities[result.Source]
			switch {
			case candidatePrio > currentPrio:
				merged[key] = Winner{RatingValue: value, Provider: result.Source}
			case candidatePrio == currentPrio && value.Votes > current.Votes:
				merged[key] = Winner{RatingValue: value, Provider: result.Source}
			}
		}
	}
	return merged
}

// Changes reports what PrepareFinal did to the stored record.
type Changes struct {
	Added   int
	Updated int
	Clamped int
}

// Dirty reports whether a write-back is needed at all.
func (c Changes) Dirty() bool { return c.Added > 0 || c.Updated > 0 }

// PrepareFinal reconciles merged results against the stored ratings and
// produces the record to write back.
//
// Stored keys are never dropped. A merged key that is new is added; a
// merged key that already exists overwrites only when its vote count is
// strictly greater than the stored one, so a thin refresh cannot
// regress a well-evidenced rating. Every final value is clamped into
// [0, RatingScaleMax]; clamping is logged as a data integrity warning
// and counted, never raised as an error. Exactly one key is marked
// default: defaultSource when present, else the first key in sorted
// order.
func PrepareFinal(title string, stored map[string]models.RatingValue, merged map[string]Winner, defaultSource string) (map[string]models.FinalRating, Changes) {
	final := make(map[string]models.FinalRating, len(stored)+len(merged))
	var changes Changes

	for key, value := range stored {
		final[key] = models.FinalRating{Rating: value.Rating, Votes: value.Votes}
	}

	for key, winner := range merged {
		existing, exists := final[key]
		if !exists {
			final[key] = models.FinalRating{Rating: winner.Rating, Votes: winner.Votes}
			changes.Added++
			continue
		}
		if winner.Votes > existing.Votes {
			final[key] = models.FinalRating{Rating: winner.Rating, Votes: winner.Votes}
			changes.Updated++
		}
	}

	for key, value := range final {
		clamped := value.Rating
		if clamped < 0 {
			clamped = 0
		}
		if clamped > models.RatingScaleMax {
			clamped = models.RatingScaleMax
		}
		if clamped != value.Rating {
			changes.Clamped++
			metrics.RatingClampWarnings.Inc()
			logging.Warn().
				Str("title", title).
				Str("source", key).
				Float64("rating", value.Rating).
				Float64("clamped", clamped).
				Msg("Rating outside valid range, clamped")
			value.Rating = clamped
			final[key] = value
		}
	}

	markDefault(final, defaultSource)
	return final, changes
}

// markDefault flags exactly one source as the library default.
func markDefault(final map[string]models.FinalRating, defaultSource string) {
	if len(final) == 0 {
		return
	}
	choice := defaultSource
	if _, ok := final[choice]; !ok {
		keys := make([]string, 0, len(final))
		for key := range final {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		choice = keys[0]
	}
	for key, value := range final {
		value.Default = key == choice
		final[key] = value
	}
}
