// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package provider implements the uniform client contract every
// external ratings source adapter satisfies, plus the concrete
// adapters (TMDb, Trakt, MDBList, OMDb, local dataset).
//
// Adapters own three responsibilities beyond the network call itself:
// scale normalization into the 0-10 RatingValue space, translation of
// provider-specific failures into the closed FetchError taxonomy, and
// consulting/populating their provider response cache before going to
// the network. A provider with no usable credential is simply excluded
// from the active set by the caller; it never appears as a failure.
package provider

import (
	"context"
	"math"

	"github.com/tomtom215/criticus/internal/models"
)

// Client is the capability every provider adapter implements.
type Client interface {
	// Name returns the short provider identifier used in priorities,
	// metrics and logs ("tmdb", "trakt", "mdblist", "omdb", "dataset").
	Name() string

	// FetchRatings fetches ratings for one item, identified by the
	// record's media kind and external identifiers. A (nil, nil)
	// return means the provider has no data for this item, which is
	// not a failure. Errors are always *FetchError.
	FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error)

	// TestConnection verifies the adapter can reach its backing source.
	TestConnection(ctx context.Context) error
}

// NormalizeRating converts a rating from an arbitrary scale onto the
// 0-10 scale, rounded to one decimal. scaleMax is the upper bound of
// the source scale (10, 100, 5, 4).
func NormalizeRating(value float64, scaleMax float64) float64 {
	if scaleMax != 10 {
		value = value / scaleMax * 10
	}
	return math.Round(value*10) / 10
}
