// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tomtom215/criticus/internal/batch"
	"github.com/tomtom215/criticus/internal/cache"
	"github.com/tomtom215/criticus/internal/config"
	"github.com/tomtom215/criticus/internal/dataset"
	"github.com/tomtom215/criticus/internal/library"
	"github.com/tomtom215/criticus/internal/logging"
	"github.com/tomtom215/criticus/internal/models"
	"github.com/tomtom215/criticus/internal/provider"
	"github.com/tomtom215/criticus/internal/server"
	"github.com/tomtom215/criticus/internal/supervisor"
)

// app bundles the wired components shared by the commands.
type app struct {
	cfg      *config.Config
	store    *cache.Store
	dataset  *dataset.Store
	library  *library.Client
	clients  []provider.Client
	resolver batch.IDResolver
	runner   *batch.Runner
}

// newApp opens stores and constructs the provider set. Close releases
// the stores.
func newApp(cfg *config.Config) (*app, error) {
	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	a := &app{cfg: cfg, store: store, library: library.New(cfg.Library)}

	if cfg.Dataset.Path != "" {
		ds, err := dataset.Open(cfg.Dataset.Path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open dataset: %w", err)
		}
		a.dataset = ds
	}

	a.clients = provider.Build(cfg, store, a.dataset)
	for _, c := range a.clients {
		if tmdb, ok := c.(*provider.TMDB); ok {
			a.resolver = tmdb
		}
	}

	a.runner = batch.New(cfg, a.library, a.clients, a.resolver, store)
	if a.dataset != nil {
		a.runner.WithDataset(a.dataset)
	}
	return a, nil
}

func (a *app) Close() {
	if a.dataset != nil {
		if err := a.dataset.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dataset store")
		}
	}
	if err := a.store.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing cache store")
	}
}

func parseKinds(kind string) ([]models.MediaKind, error) {
	if kind == "all" {
		return []models.MediaKind{models.KindMovie, models.KindShow, models.KindEpisode}, nil
	}
	k := models.MediaKind(kind)
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kind %q (movie, tvshow, episode, all)", kind)
	}
	return []models.MediaKind{k}, nil
}

func cmdRun(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	kindFlag := fs.String("kind", "all", "media kind: movie, tvshow, episode, all")
	modeFlag := fs.String("mode", string(batch.ModeMultiSource), "batch mode: multi_source, dataset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kinds, err := parseKinds(*kindFlag)
	if err != nil {
		return err
	}
	mode := batch.Mode(*modeFlag)
	if mode != batch.ModeMultiSource && mode != batch.ModeDataset {
		return fmt.Errorf("invalid mode %q", *modeFlag)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if mode == batch.ModeMultiSource && len(a.clients) == 0 {
		return fmt.Errorf("no providers active; configure at least one API key")
	}

	for _, kind := range kinds {
		if ctx.Err() != nil {
			break
		}
		stats, err := a.runner.Run(ctx, kind, mode)
		if err != nil {
			return err
		}
		printReport(stats)
	}
	return nil
}

func printReport(stats *models.BatchStats) {
	fmt.Printf("\n%s batch (%s): %d items, %d updated, %d skipped, %d failed",
		stats.Kind, stats.Mode, stats.TotalItems, stats.Updated, stats.Skipped, stats.Failed)
	if stats.Retried > 0 {
		fmt.Printf(", %d retried", stats.Retried)
	}
	if stats.Cancelled {
		fmt.Print(" [cancelled]")
	}
	fmt.Printf("\n  ratings: %d added, %d updated; elapsed %s\n",
		stats.RatingsAdded, stats.RatingsUpdated, stats.Elapsed.Round(time.Millisecond))
	for source, s := range stats.PerSource {
		fmt.Printf("  %-12s fetched %d, failed %d\n", source, s.Fetched, s.Failed)
	}
}

func cmdImport(ctx context.Context, cfg *config.Config) error {
	if cfg.Dataset.Path == "" || cfg.Dataset.SourceURL == "" {
		return fmt.Errorf("dataset.path and dataset.source_url must be configured")
	}

	ds, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer ds.Close()

	rows, err := ds.Import(ctx, cfg.Dataset.SourceURL)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d titles\n", rows)
	return nil
}

func cmdServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	kinds := []models.MediaKind{models.KindMovie, models.KindShow, models.KindEpisode}
	tree.AddWorker(supervisor.NewRefreshService(a.runner, kinds, cfg.Server.RefreshInterval, false))
	tree.AddWorker(supervisor.NewJanitorService(a.store, cfg.Cache.JanitorInterval))

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, a.runner.Reports(), func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.library.Ping(checkCtx)
		})
		tree.AddAPI(supervisor.NewHTTPService(srv.HTTPServer(), 10*time.Second))
		logging.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("Ops endpoint enabled")
	}

	logging.Info().Dur("refresh_interval", cfg.Server.RefreshInterval).Msg("Serve mode started")
	err = tree.Serve(ctx)
	if ctx.Err() != nil {
		// Normal signal-driven shutdown.
		if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
			for _, svc := range report {
				logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
			}
		}
		return nil
	}
	return err
}

func cmdCheck(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0

	if err := a.library.Ping(ctx); err != nil {
		fmt.Printf("library      FAIL  %v\n", err)
		failed++
	} else {
		fmt.Println("library      ok")
	}

	for _, c := range a.clients {
		if err := c.TestConnection(ctx); err != nil {
			fmt.Printf("%-12s FAIL  %v\n", c.Name(), err)
			failed++
		} else {
			fmt.Printf("%-12s ok\n", c.Name())
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
	return nil
}
