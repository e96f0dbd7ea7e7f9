// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"context"
	"fmt"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/ratelimit"
)

// Trakt fetches community ratings from the Trakt API. Items are
// addressed by IMDb id, which Trakt accepts as a native slug.
type Trakt struct {
	sess    *session
	cache   *responseCache
	tracker *UsageTracker
}

// NewTrakt constructs the Trakt adapter.
func NewTrakt(cfg config.ProviderConfig, limits *ratelimit.Registry, bucket *cache.Bucket, cacheDays int, tracker *UsageTracker) *Trakt {
	limits.Register("trakt", cfg.RateLimit, cfg.RateWindow)
	headers := map[string]string{
		"trakt-api-version": "2",
		"trakt-api-key":     cfg.APIKey,
	}
	return &Trakt{
		sess:    newSession("trakt", cfg.BaseURL, cfg.Timeout, limits, headers),
		cache:   newResponseCache("trakt", bucket, cacheDays),
		tracker: tracker,
	}
}

// Name implements Client.
func (t *Trakt) Name() string { return "trakt" }

type traktRatings struct {
	Rating float64 `json:"rating"`
	Votes  int64   `json:"votes"`
}

// FetchRatings implements Client.
func (t *Trakt) FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
	id := item.IDs.IMDB
	if id == "" {
		return nil, nil
	}

	if cached := t.cache.get(item.Kind, id); cached != nil {
		return &models.ProviderResult{Source: "trakt", Ratings: cached}, nil
	}

	var path string
	switch item.Kind {
	case models.KindMovie:
		path = "/movies/" + id + "/ratings"
	case models.KindShow:
		path = "/shows/" + id + "/ratings"
	case models.KindEpisode:
		if item.IDs.Season <= 0 || item.IDs.Episode <= 0 {
			return nil, nil
		}
		// Episode ratings hang off the show's IMDb id when the episode
		// itself has none.
		path = fmt.Sprintf("/shows/%s/seasons/%d/episodes/%d/ratings", id, item.IDs.Season, item.IDs.Episode)
	default:
		return nil, nil
	}

	if t.tracker != nil {
		t.tracker.Increment("trakt")
	}

	var resp traktRatings
	if err := t.sess.getJSON(ctx, path, nil, &resp); err != nil {
		if Classify(err) == KindPermanent {
			return nil, nil
		}
		return nil, err
	}

	if resp.Votes <= 0 {
		return nil, nil
	}

	ratings := map[string]models.RatingValue{
		"trakt": {
			Rating: NormalizeRating(resp.Rating, 10),
			Votes:  resp.Votes,
		},
	}

	t.cache.put(item.Kind, id, ratings, cache.LifecycleHints{LibraryMember: item.LibraryMember})

	return &models.ProviderResult{Source: "trakt", Ratings: ratings}, nil
}

// TestConnection implements Client.
func (t *Trakt) TestConnection(ctx context.Context) error {
	var resp traktRatings
	return t.sess.getJSON(ctx, "/movies/tt0111161/ratings", nil, &resp)
}
