// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

// Package dataset maintains a local copy of the IMDb ratings dataset in
// an embedded DuckDB database. Lookups against it are offline, so the
// dataset source carries no rate limiter and no response cache.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/criticus/internal/logging"
)

// Rating is one row of the dataset: the IMDb community score for one
// title.
type Rating struct {
	IMDBID string
	Rating float64
	Votes  int64
}

// Store wraps the DuckDB database holding the imported dataset.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the dataset database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dataset directory: %w", err)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open dataset database: %w", err)
	}

	// Single writer, a handful of readers. DuckDB holds the file lock
	// per connection, so keep the pool small.
	db.SetMaxOpenConns(4)

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS title_ratings (
			imdb_id VARCHAR PRIMARY KEY,
			rating  DOUBLE NOT NULL,
			votes   BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_meta (
			key   VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("dataset schema: %w", err)
		}
	}
	return nil
}

// Lookup returns the dataset rating for an IMDb id, or (nil, nil) when
// the id is not in the dataset.
func (s *Store) Lookup(ctx context.Context, imdbID string) (*Rating, error) {
	if imdbID == "" {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT rating, votes FROM title_ratings WHERE imdb_id = ?`, imdbID)

	r := Rating{IMDBID: imdbID}
	if err := row.Scan(&r.Rating, &r.Votes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("dataset lookup %s: %w", imdbID, err)
	}
	return &r, nil
}

// Count returns the number of titles in the dataset.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM title_ratings`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("dataset count: %w", err)
	}
	return n, nil
}

// SnapshotDate returns the date of the imported dataset snapshot, or
// the zero time when no import has completed.
func (s *Store) SnapshotDate(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM dataset_meta WHERE key = 'snapshot_date'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("dataset snapshot date: %w", err)
	}

	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("dataset snapshot date %q: %w", raw, err)
	}
	return t, nil
}

// Stale reports whether the dataset snapshot is older than maxAge or
// has never been imported.
func (s *Store) Stale(ctx context.Context, maxAge time.Duration) (bool, error) {
	date, err := s.SnapshotDate(ctx)
	if err != nil {
		return false, err
	}
	if date.IsZero() {
		return true, nil
	}
	stale := time.Since(date) > maxAge
	if stale {
		logging.Debug().
			Time("snapshot", date).
			Dur("max_age", maxAge).
			Msg("Dataset snapshot is stale")
	}
	return stale, nil
}
