// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"context"

	"github.com/tomtom215/criticus/internal/dataset"
	"github.com/tomtom215/criticus/internal/models"
)

// Dataset serves IMDb ratings from the locally imported bulk dataset.
// It takes precedence over every network source for the "imdb" key:
// the dataset is the authoritative copy, refreshed wholesale, while
// network providers relay it secondhand. Being local it needs neither
// a rate limiter nor a response cache.
type Dataset struct {
	store *dataset.Store
}

// NewDataset wraps an opened dataset store as a provider client.
func NewDataset(store *dataset.Store) *Dataset {
	return &Dataset{store: store}
}

// Name implements Client.
func (d *Dataset) Name() string { return "dataset" }

// FetchRatings implements Client.
func (d *Dataset) FetchRatings(ctx context.Context, item *models.ItemRecord) (*models.ProviderResult, error) {
	id := item.IDs.IMDB
	if id == "" {
		return nil, nil
	}

	r, err := d.store.Lookup(ctx, id)
	if err != nil {
		return nil, Retryable("dataset", "dataset lookup", err)
	}
	if r == nil || r.Votes <= 0 {
		return nil, nil
	}

	return &models.ProviderResult{
		Source: "dataset",
		Ratings: map[string]models.RatingValue{
			"imdb": {
				Rating: NormalizeRating(r.Rating, 10),
				Votes:  r.Votes,
			},
		},
	}, nil
}

// TestConnection implements Client.
func (d *Dataset) TestConnection(ctx context.Context) error {
	_, err := d.store.Count(ctx)
	return err
}
