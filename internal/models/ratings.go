// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package models provides data models for the application.
package models

// RatingScaleMax is the upper bound of the normalized rating scale.
// Every rating leaving a provider adapter is already on the 0-10 scale;
// scale conversion (0-100, 0-5, 0-4) is the adapter's responsibility.
const RatingScaleMax = 10.0

// RatingValue is a single normalized rating plus its evidence count.
type RatingValue struct {
	Rating float64 `json:"rating"` // 0-10 scale
	Votes  int64   `json:"votes"`  // non-negative
}

// ProviderResult is one provider's answer for one item: a mapping from
// rating-source name (e.g. "imdb", "themoviedb", "tomatometerallcritics")
// to RatingValue. Absence of a key means "no data", never "zero rating".
type ProviderResult struct {
	// Source identifies the provider that produced this result
	// ("tmdb", "trakt", "mdblist", "omdb", "dataset").
	Source string `json:"_source"`

	// Ratings maps rating-source name to the normalized value.
	Ratings map[string]RatingValue `json:"ratings"`
}

// FinalRating is a rating entry prepared for write-back to the host
// library, carrying the default-source marker the library expects.
type FinalRating struct {
	Rating  float64 `json:"rating"`
	Votes   int64   `json:"votes"`
	Default bool    `json:"default"`
}
