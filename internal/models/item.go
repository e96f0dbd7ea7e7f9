// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package models

// MediaKind identifies the library media type of an item.
type MediaKind string

// Supported media kinds. These match the host library's type names.
const (
	KindMovie   MediaKind = "movie"
	KindShow    MediaKind = "tvshow"
	KindEpisode MediaKind = "episode"
)

// Valid reports whether k is one of the supported media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case KindMovie, KindShow, KindEpisode:
		return true
	}
	return false
}

// Identifiers holds the external catalog identifiers known for an item.
// Any subset may be present; adapters pick the ones they can use.
type Identifiers struct {
	IMDB    string `json:"imdb,omitempty"`    // primary catalog id ("tt...")
	TMDB    string `json:"tmdb,omitempty"`    // alternate catalog id (numeric)
	TVDB    string `json:"tvdb,omitempty"`    // schedule provider id
	Season  int    `json:"season,omitempty"`  // episodes only
	Episode int    `json:"episode,omitempty"` // episodes only
}

// Empty reports whether no catalog identifier at all is known.
func (ids Identifiers) Empty() bool {
	return ids.IMDB == "" && ids.TMDB == "" && ids.TVDB == ""
}

// ItemRecord is one library item as handed to the aggregation engine:
// identity, known external ids, and the ratings currently stored for it.
type ItemRecord struct {
	LibraryID int                    `json:"library_id"`
	Title     string                 `json:"title"`
	Year      int                    `json:"year,omitempty"`
	Kind      MediaKind              `json:"kind"`
	IDs       Identifiers            `json:"ids"`
	Stored    map[string]RatingValue `json:"stored,omitempty"`

	// LibraryMember is false for ad hoc lookups of items that are not
	// actually part of the library. Such items always get the volatile
	// cache TTL regardless of lifecycle hints.
	LibraryMember bool `json:"library_member"`
}
