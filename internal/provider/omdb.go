// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/ratelimit"
)

// OMDB fetches IMDb and Rotten Tomatoes figures from the OMDb API.
// OMDb reports numbers as formatted strings ("8.7", "1,234,567",
// "94%", "N/A"), so every field goes through a parser before use.
type OMDB struct {
	apiKey  string
	sess    *session
	cache   *responseCache
	tracker *UsageTracker
}

// NewOMDB constructs the OMDb adapter.
func NewOMDB(cfg config.ProviderConfig, limits *ratelimit.Registry, bucket *cache.Bucket, cacheDays int, tracker *UsageTracker) *OMDB {
	limits.Register("omdb", cfg.RateLimit, cfg.RateWindow)
	return &OMDB{
		apiKey:  cfg.APIKey,
		sess:    newSession("omdb", cfg.BaseURL, cfg.Timeout, limits, nil),
		cache:   newResponseCache("omdb", bucket, cacheDays),
		tracker: tracker,
	}
}

// Name implements Client.
func (o *OMDB) Name() string { return "omdb" }

type omdbResponse struct {
	Response      string `json:"Response"`
	Error         string `json:"Error"`
	IMDBRating    string `json:"imdbRating"`
	IMDBVotes     string `json:"imdbVotes"`
	TomatoMeter   string `json:"tomatoMeter"`
	TomatoReviews string `json:"tomatoReviews"`
	Metascore     string `json:"Metascore"`
}

// FetchRatings implements Client.
func (o *OMDB) FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
	id := item.IDs.IMDB
	if id == "" {
		return nil, nil
	}

	if cached := o.cache.get(item.Kind, id); cached != nil {
		return &models.ProviderResult{Source: "omdb", Ratings: cached}, nil
	}

	if o.tracker != nil {
		if _, hit := o.tracker.Increment("omdb"); hit {
			return nil, RateLimited("omdb")
		}
	}

	query := url.Values{
		"apikey":   {o.apiKey},
		"i":        {id},
		"tomatoes": {"true"},
	}
	var resp omdbResponse
	if err := o.sess.getJSON(ctx, "/", query, &resp); err != nil {
		switch Classify(err) {
		case KindRateLimited:
			if o.tracker != nil {
				o.tracker.MarkLimitHit("omdb")
			}
			return nil, err
		case KindPermanent:
			return nil, nil
		default:
			return nil, err
		}
	}

	// OMDb signals "not found" and quota exhaustion inside a 200
	// response.
	if !strings.EqualFold(resp.Response, "True") {
		if strings.Contains(strings.ToLower(resp.Error), "limit") {
			if o.tracker != nil {
				o.tracker.MarkLimitHit("omdb")
			}
			return nil, RateLimited("omdb")
		}
		return nil, nil
	}

	ratings := make(map[string]models.RatingValue, 3)
	if rating, ok := omdbFloat(resp.IMDBRating); ok {
		ratings["imdb"] = models.RatingValue{
			Rating: NormalizeRating(rating, 10),
			Votes:  omdbVotes(resp.IMDBVotes),
		}
	}
	if meter, ok := omdbFloat(strings.TrimSuffix(resp.TomatoMeter, "%")); ok {
		ratings["tomatoes"] = models.RatingValue{
			Rating: NormalizeRating(meter, 100),
			Votes:  omdbVotes(resp.TomatoReviews),
		}
	}
	if score, ok := omdbFloat(resp.Metascore); ok {
		ratings["metacritic"] = models.RatingValue{
			Rating: NormalizeRating(score, 100),
		}
	}

	if len(ratings) == 0 {
		return nil, nil
	}

	o.cache.put(item.Kind, id, ratings, cache.LifecycleHints{LibraryMember: item.LibraryMember})

	return &models.ProviderResult{Source: "omdb", Ratings: ratings}, nil
}

// omdbFloat parses an OMDb numeric string, rejecting "N/A" and blanks.
func omdbFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// omdbVotes parses a comma-grouped vote count; unparseable means 0.
func omdbVotes(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// TestConnection implements Client.
func (o *OMDB) TestConnection(ctx context.Context) error {
	var resp omdbResponse
	query := url.Values{"apikey": {o.apiKey}, "i": {"tt0111161"}}
	return o.sess.getJSON(ctx, "/", query, &resp)
}
