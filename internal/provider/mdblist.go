// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"context"
	"net/url"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/ratelimit"
)

// MDBList aggregates several secondary rating sources behind one call.
// Each source in its response carries its own scale, so normalization
// is per-source.
type MDBList struct {
	apiKey  string
	sess    *session
	cache   *responseCache
	tracker *UsageTracker
}

// NewMDBList constructs the MDBList adapter.
func NewMDBList(cfg config.ProviderConfig, limits *ratelimit.Registry, bucket *cache.Bucket, cacheDays int, tracker *UsageTracker) *MDBList {
	limits.Register("mdblist", cfg.RateLimit, cfg.RateWindow)
	return &MDBList{
		apiKey:  cfg.APIKey,
		sess:    newSession("mdblist", cfg.BaseURL, cfg.Timeout, limits, nil),
		cache:   newResponseCache("mdblist", bucket, cacheDays),
		tracker: tracker,
	}
}

// Name implements Client.
func (m *MDBList) Name() string { return "mdblist" }

// mdblistScales maps MDBList source names to the maximum of their
// native scale. Sources not listed here are already 0-10.
var mdblistScales = map[string]float64{
	"metacritic":     100,
	"metacriticuser": 10,
	"tomatoes":       100,
	"audience":       100,
	"rogerebert":     4,
	"letterboxd":     5,
	"myanimelist":    10,
}

type mdblistResponse struct {
	Ratings []struct {
		Source string   `json:"source"`
		Value  *float64 `json:"value"`
		Votes  int64    `json:"votes"`
	} `json:"ratings"`
}

// FetchRatings implements Client.
func (m *MDBList) FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
	// MDBList covers movies and shows; episodes have no endpoint.
	if item.Kind == models.KindEpisode {
		return nil, nil
	}
	id := item.IDs.IMDB
	if id == "" {
		return nil, nil
	}

	if cached := m.cache.get(item.Kind, id); cached != nil {
		return &models.ProviderResult{Source: "mdblist", Ratings: cached}, nil
	}

	mediaType := "movie"
	if item.Kind == models.KindShow {
		mediaType = "show"
	}

	if m.tracker != nil {
		m.tracker.Increment("mdblist")
	}

	var resp mdblistResponse
	query := url.Values{"apikey": {m.apiKey}}
	if err := m.sess.getJSON(ctx, "/imdb/"+mediaType+"/"+id, query, &resp); err != nil {
		if Classify(err) == KindPermanent {
			return nil, nil
		}
		return nil, err
	}

	ratings := make(map[string]models.RatingValue, len(resp.Ratings))
	for _, r := range resp.Ratings {
		if r.Value == nil || r.Source == "" {
			continue
		}
		// IMDb and TMDb come from their own adapters at higher
		// fidelity; the secondhand copies would only fight them
		// during reconciliation.
		if r.Source == "imdb" || r.Source == "tmdb" {
			continue
		}
		scale := mdblistScales[r.Source]
		if scale == 0 {
			scale = 10
		}
		ratings[r.Source] = models.RatingValue{
			Rating: NormalizeRating(*r.Value, scale),
			Votes:  r.Votes,
		}
	}

	if len(ratings) == 0 {
		return nil, nil
	}

	m.cache.put(item.Kind, id, ratings, cache.LifecycleHints{LibraryMember: item.LibraryMember})

	return &models.ProviderResult{Source: "mdblist", Ratings: ratings}, nil
}

// TestConnection implements Client.
func (m *MDBList) TestConnection(ctx context.Context) error {
	var resp mdblistResponse
	query := url.Values{"apikey": {m.apiKey}}
	return m.sess.getJSON(ctx, "/imdb/movie/tt0111161", query, &resp)
}
