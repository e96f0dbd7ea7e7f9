// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/ratelimit"
)

// TMDB fetches ratings from The Movie Database. It is also the
// cross-reference source used to resolve a TMDb id from an IMDb id for
// items that only carry the primary catalog identifier.
type TMDB struct {
	apiKey  string
	sess    *session
	cache   *responseCache
	tracker *UsageTracker
}

// NewTMDB constructs the TMDb adapter, registering its window with the
// shared limiter registry.
func NewTMDB(cfg config.ProviderConfig, limits *ratelimit.Registry, bucket *cache.Bucket, cacheDays int, tracker *UsageTracker) *TMDB {
	limits.Register("tmdb", cfg.RateLimit, cfg.RateWindow)
	return &TMDB{
		apiKey:  cfg.APIKey,
		sess:    newSession("tmdb", cfg.BaseURL, cfg.Timeout, limits, nil),
		cache:   newResponseCache("tmdb", bucket, cacheDays),
		tracker: tracker,
	}
}

// Name implements Client.
func (t *TMDB) Name() string { return "tmdb" }

// tmdbDetails is the subset of the details response the aggregation
// engine needs: the score itself plus the lifecycle fields that drive
// cache TTL.
type tmdbDetails struct {
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
	Status       string  `json:"status"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	AirDate      string  `json:"air_date"`
	NextEpisode  *struct {
		AirDate string `json:"air_date"`
	} `json:"next_episode_to_air"`
}

// FetchRatings implements Client.
func (t *TMDB) FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
	id := item.IDs.TMDB
	if id == "" {
		return nil, nil
	}

	// Movies report under the host library's "themoviedb" source key,
	// shows and episodes under "tmdb". This mirrors the key the
	// library's own scrapers use for each kind.
	sourceKey := "tmdb"
	if item.Kind == models.KindMovie {
		sourceKey = "themoviedb"
	}

	if cached := t.cache.get(item.Kind, id); cached != nil {
		return &models.ProviderResult{Source: "tmdb", Ratings: cached}, nil
	}

	path, err := t.detailsPath(item, id)
	if err != nil {
		return nil, nil //nolint:nilerr // unusable identifiers mean "no data"
	}

	if t.tracker != nil {
		t.tracker.Increment("tmdb")
	}

	var details tmdbDetails
	query := url.Values{"api_key": {t.apiKey}}
	if err := t.sess.getJSON(ctx, path, query, &details); err != nil {
		if Classify(err) == KindPermanent {
			return nil, nil
		}
		return nil, err
	}

	if details.VoteCount <= 0 {
		return nil, nil
	}

	ratings := map[string]models.RatingValue{
		sourceKey: {
			Rating: NormalizeRating(details.VoteAverage, 10),
			Votes:  details.VoteCount,
		},
	}

	t.cache.put(item.Kind, id, ratings, t.lifecycleHints(item, &details))

	return &models.ProviderResult{Source: "tmdb", Ratings: ratings}, nil
}

// detailsPath builds the endpoint for the item's kind.
func (t *TMDB) detailsPath(item *models.ItemRecord, id string) (string, error) {
	switch item.Kind {
	case models.KindMovie:
		return "/movie/" + id, nil
	case models.KindShow:
		return "/tv/" + id, nil
	case models.KindEpisode:
		if item.IDs.Season <= 0 || item.IDs.Episode <= 0 {
			return "", fmt.Errorf("episode without season/episode numbers")
		}
		return fmt.Sprintf("/tv/%s/season/%d/episode/%d", id, item.IDs.Season, item.IDs.Episode), nil
	default:
		return "", fmt.Errorf("unsupported media kind %q", item.Kind)
	}
}

// lifecycleHints extracts TTL hints from the details response.
func (t *TMDB) lifecycleHints(item *models.ItemRecord, d *tmdbDetails) cache.LifecycleHints {
	hints := cache.LifecycleHints{
		Status:        d.Status,
		LibraryMember: item.LibraryMember,
	}

	if d.NextEpisode != nil {
		if at, err := time.Parse("2006-01-02", d.NextEpisode.AirDate); err == nil {
			hints.NextScheduled = &at
		}
	}

	for _, raw := range []string{d.ReleaseDate, d.FirstAirDate, d.AirDate} {
		if raw == "" {
			continue
		}
		if rd, err := time.Parse("2006-01-02", raw); err == nil {
			hints.ReleaseDate = &rd
			break
		}
	}

	return hints
}

// FindByIMDB resolves a TMDb id from an IMDb id, or returns "" when the
// cross-reference has no match.
func (t *TMDB) FindByIMDB(ctx context.Context, imdbID string, kind models.MediaKind) (string, error) {
	if imdbID == "" {
		return "", nil
	}

	var resp struct {
		MovieResults []struct {
			ID int64 `json:"id"`
		} `json:"movie_results"`
		TVResults []struct {
			ID int64 `json:"id"`
		} `json:"tv_results"`
	}

	query := url.Values{
		"api_key":         {t.apiKey},
		"external_source": {"imdb_id"},
	}
	if err := t.sess.getJSON(ctx, "/find/"+imdbID, query, &resp); err != nil {
		if Classify(err) == KindPermanent {
			return "", nil
		}
		return "", err
	}

	if kind == models.KindMovie {
		if len(resp.MovieResults) > 0 {
			return fmt.Sprintf("%d", resp.MovieResults[0].ID), nil
		}
		return "", nil
	}
	if len(resp.TVResults) > 0 {
		return fmt.Sprintf("%d", resp.TVResults[0].ID), nil
	}
	return "", nil
}

// TestConnection implements Client.
func (t *TMDB) TestConnection(ctx context.Context) error {
	var out tmdbDetails
	return t.sess.getJSON(ctx, "/movie/550", url.Values{"api_key": {t.apiKey}}, &out)
}
