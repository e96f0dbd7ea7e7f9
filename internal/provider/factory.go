// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package provider

import (
	"sort"

	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/dataset"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/ratelimit"
)

// Build constructs the active client set from configuration. Network
// adapters are included only when enabled and credentialed; the dataset
// client is included whenever a store is supplied. The result is sorted
// by name so startup logging and scheduling are deterministic.
func Build(cfg *config.Config, store *cache.Store, datasetStore *dataset.Store) []Client {
	bucket := store.Bucket(cache.ProviderCache)
	tracker := NewUsageTracker(store.Bucket(cache.AggregateCache))
	limits := ratelimit.NewRegistry()
	cacheDays := cfg.Providers.CacheTTLDays

	var clients []Client
	for name, pc := range cfg.ActiveProviderConfigs() {
		switch name {
		case "tmdb":
			clients = append(clients, NewTMDB(pc, limits, bucket, cacheDays, tracker))
		case "trakt":
			clients = append(clients, NewTrakt(pc, limits, bucket, cacheDays, tracker))
		case "mdblist":
			clients = append(clients, NewMDBList(pc, limits, bucket, cacheDays, tracker))
		case "omdb":
			clients = append(clients, NewOMDB(pc, limits, bucket, cacheDays, tracker))
		default:
			logging.Warn().Str("provider", name).Msg("Unknown provider in configuration")
		}
	}

	if datasetStore != nil {
		clients = append(clients, NewDataset(datasetStore))
	}

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].Name() < clients[j].Name()
	})

	for _, c := range clients {
		logging.Debug().Str("provider", c.Name()).Msg("Provider active")
	}
	return clients
}
