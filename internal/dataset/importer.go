// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/criticus/internal/logging"
)

// importBatchSize is the number of rows inserted per transaction
// during import.
const importBatchSize = 10_000

// Import downloads the gzipped TSV dataset from sourceURL and replaces
// the local table with its contents. The swap happens in a staging
// table so readers keep working against the old snapshot until the new
// one is complete.
func (s *Store) Import(ctx context.Context, sourceURL string) (int64, error) {
	logging.Info().Str("url", sourceURL).Msg("Dataset import started")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("dataset download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dataset download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dataset download: HTTP %d", resp.StatusCode)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("dataset decompress: %w", err)
	}
	defer gz.Close()

	rows, err := s.importRows(ctx, gz)
	if err != nil {
		return 0, err
	}

	logging.Info().
		Int64("rows", rows).
		Dur("elapsed", time.Since(start)).
		Msg("Dataset import complete")
	return rows, nil
}

// importRows streams the TSV into a staging table, then atomically
// swaps it in and records the snapshot date.
func (s *Store) importRows(ctx context.Context, r io.Reader) (int64, error) {
	stmts := []string{
		`DROP TABLE IF EXISTS title_ratings_staging`,
		`CREATE TABLE title_ratings_staging (
			imdb_id VARCHAR PRIMARY KEY,
			rating  DOUBLE NOT NULL,
			votes   BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("dataset staging: %w", err)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		total   int64
		skipped int64
		batch   []Rating
	)

	// Header row: tconst averageRating numVotes.
	if scanner.Scan() && !strings.HasPrefix(scanner.Text(), "tconst") {
		return 0, fmt.Errorf("dataset import: unexpected header %q", scanner.Text())
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("dataset import cancelled: %w", err)
		}

		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 3 {
			skipped++
			continue
		}
		rating, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			skipped++
			continue
		}
		votes, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			skipped++
			continue
		}

		batch = append(batch, Rating{IMDBID: fields[0], Rating: rating, Votes: votes})
		if len(batch) >= importBatchSize {
			if err := s.insertBatch(ctx, batch); err != nil {
				return 0, err
			}
			total += int64(len(batch))
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("dataset read: %w", err)
	}
	if len(batch) > 0 {
		if err := s.insertBatch(ctx, batch); err != nil {
			return 0, err
		}
		total += int64(len(batch))
	}

	if skipped > 0 {
		logging.Warn().Int64("rows", skipped).Msg("Dataset rows skipped as malformed")
	}

	swap := []string{
		`DROP TABLE IF EXISTS title_ratings`,
		`ALTER TABLE title_ratings_staging RENAME TO title_ratings`,
	}
	for _, stmt := range swap {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("dataset swap: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dataset_meta (key, value) VALUES ('snapshot_date', ?)`,
		time.Now().Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("dataset snapshot date: %w", err)
	}

	return total, nil
}

func (s *Store) insertBatch(ctx context.Context, batch []Rating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dataset batch begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO title_ratings_staging (imdb_id, rating, votes) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("dataset batch prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, r.IMDBID, r.Rating, r.Votes); err != nil {
			return fmt.Errorf("dataset insert %s: %w", r.IMDBID, err)
		}
	}
	return tx.Commit()
}
