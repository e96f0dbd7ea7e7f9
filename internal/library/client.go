// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package library talks JSON-RPC to the host media library: listing
// items with their stored ratings and identifiers, and writing merged
// ratings back. Writes go through a token-bucket pacer so a large batch
// does not starve the library's own request handling.
package library

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/metrics"
	"github.com/tomtom215/criticus/internal/models"
)

// Client is a JSON-RPC 2.0 client for the host library endpoint.
type Client struct {
	url      string
	username string
	password string
	http     *http.Client
	writes   *rate.Limiter
	seq      atomic.Int64
}

// New builds a client from the library configuration.
func New(cfg config.LibraryConfig) *Client {
	return &Client{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout},
		writes:   rate.NewLimiter(rate.Limit(cfg.WriteRate), 1),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("library rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip and decodes result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.seq.Add(1),
	})
	if err != nil {
		return fmt.Errorf("library marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("library request %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("library call %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("library call %s: HTTP %d", method, resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("library decode %s: %w", method, err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("library call %s: %w", method, rpc.Error)
	}
	// A null result where one is expected means the write was rejected.
	if out != nil {
		if len(rpc.Result) == 0 || string(rpc.Result) == "null" {
			return fmt.Errorf("library call %s: null result", method)
		}
		if err := json.Unmarshal(rpc.Result, out); err != nil {
			return fmt.Errorf("library result %s: %w", method, err)
		}
	}
	return nil
}

// itemProperties are requested for every listed item.
var itemProperties = []string{"title", "year", "ratings", "uniqueid"}

// episodeProperties additionally carry season/episode numbers and the
// owning show.
var episodeProperties = []string{"title", "year", "ratings", "uniqueid", "season", "episode", "tvshowid"}

type wireRating struct {
	Rating  float64 `json:"rating"`
	Votes   int64   `json:"votes"`
	Default bool    `json:"default"`
}

type wireItem struct {
	MovieID   int                   `json:"movieid"`
	TVShowID  int                   `json:"tvshowid"`
	EpisodeID int                   `json:"episodeid"`
	Title     string                `json:"title"`
	Year      int                   `json:"year"`
	Season    int                   `json:"season"`
	Episode   int                   `json:"episode"`
	Ratings   map[string]wireRating `json:"ratings"`
	UniqueID  map[string]string     `json:"uniqueid"`
}

func (w *wireItem) toRecord(kind models.MediaKind) models.ItemRecord {
	rec := models.ItemRecord{
		Title:         w.Title,
		Year:          w.Year,
		Kind:          kind,
		LibraryMember: true,
		Stored:        make(map[string]models.RatingValue, len(w.Ratings)),
		IDs: models.Identifiers{
			IMDB:    w.UniqueID["imdb"],
			TMDB:    w.UniqueID["tmdb"],
			TVDB:    w.UniqueID["tvdb"],
			Season:  w.Season,
			Episode: w.Episode,
		},
	}
	switch kind {
	case models.KindMovie:
		rec.LibraryID = w.MovieID
	case models.KindShow:
		rec.LibraryID = w.TVShowID
	case models.KindEpisode:
		rec.LibraryID = w.EpisodeID
	}
	for source, r := range w.Ratings {
		rec.Stored[source] = models.RatingValue{Rating: r.Rating, Votes: r.Votes}
	}
	return rec
}

// GetItems lists all library items of one kind with their stored
// ratings and external identifiers.
func (c *Client) GetItems(ctx context.Context, kind models.MediaKind) ([]models.ItemRecord, error) {
	var method, field string
	params := map[string]any{"properties": itemProperties}

	switch kind {
	case models.KindMovie:
		method, field = "VideoLibrary.GetMovies", "movies"
	case models.KindShow:
		method, field = "VideoLibrary.GetTVShows", "tvshows"
	case models.KindEpisode:
		method, field = "VideoLibrary.GetEpisodes", "episodes"
		params["properties"] = episodeProperties
	default:
		return nil, fmt.Errorf("library: unsupported media kind %q", kind)
	}

	var result map[string]json.RawMessage
	if err := c.call(ctx, method, params, &result); err != nil {
		return nil, err
	}

	var wire []wireItem
	if raw, ok := result[field]; ok {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("library items %s: %w", method, err)
		}
	}

	items := make([]models.ItemRecord, 0, len(wire))
	for i := range wire {
		items = append(items, wire[i].toRecord(kind))
	}

	logging.Debug().
		Str("kind", string(kind)).
		Int("count", len(items)).
		Msg("Library items listed")
	return items, nil
}

// SetRatings writes the merged rating set back to one item. The call
// waits on the write pacer first, so bulk write-back proceeds at the
// configured rate.
func (c *Client) SetRatings(ctx context.Context, kind models.MediaKind, libraryID int, ratings map[string]models.FinalRating) error {
	if err := c.writes.Wait(ctx); err != nil {
		return fmt.Errorf("library write pacing: %w", err)
	}

	var method, idField string
	switch kind {
	case models.KindMovie:
		method, idField = "VideoLibrary.SetMovieDetails", "movieid"
	case models.KindShow:
		method, idField = "VideoLibrary.SetTVShowDetails", "tvshowid"
	case models.KindEpisode:
		method, idField = "VideoLibrary.SetEpisodeDetails", "episodeid"
	default:
		return fmt.Errorf("library: unsupported media kind %q", kind)
	}

	wire := make(map[string]wireRating, len(ratings))
	for source, r := range ratings {
		wire[source] = wireRating{Rating: r.Rating, Votes: r.Votes, Default: r.Default}
	}
	params := map[string]any{
		idField:   libraryID,
		"ratings": wire,
	}

	var result json.RawMessage
	err := c.call(ctx, method, params, &result)
	if err != nil {
		metrics.LibraryWrites.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LibraryWrites.WithLabelValues("ok").Inc()
	return nil
}

// Ping verifies the endpoint responds to JSON-RPC at all.
func (c *Client) Ping(ctx context.Context) error {
	var result string
	if err := c.call(ctx, "JSONRPC.Ping", nil, &result); err != nil {
		return err
	}
	if result != "pong" {
		return fmt.Errorf("library ping: unexpected result %q", result)
	}
	return nil
}

// SetWriteRate adjusts the write pacer at runtime.
func (c *Client) SetWriteRate(perSecond float64) {
	c.writes.SetLimit(rate.Limit(perSecond))
}
