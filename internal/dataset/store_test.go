// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package dataset

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSV = `tconst	averageRating	numVotes
tt0000001	5.7	2145
tt0111161	9.3	3010524
tt0133093	8.7	2100482
badline
tt9999999	notanumber	10
`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ratings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func importSample(t *testing.T, s *Store) int64 {
	t.Helper()
	rows, err := s.importRows(context.Background(), strings.NewReader(sampleTSV))
	require.NoError(t, err)
	return rows
}

func TestImportAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := importSample(t, s)
	assert.Equal(t, int64(3), rows, "malformed rows are skipped, not fatal")

	r, err := s.Lookup(ctx, "tt0111161")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 9.3, r.Rating)
	assert.Equal(t, int64(3010524), r.Votes)

	r, err = s.Lookup(ctx, "tt7777777")
	require.NoError(t, err)
	assert.Nil(t, r, "absent id is nil, not an error")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSnapshotDateRecordedOnImport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	date, err := s.SnapshotDate(ctx)
	require.NoError(t, err)
	assert.True(t, date.IsZero(), "no snapshot before first import")

	stale, err := s.Stale(ctx, time.Hour)
	require.NoError(t, err)
	assert.True(t, stale, "never-imported dataset is stale")

	importSample(t, s)

	date, err = s.SnapshotDate(ctx)
	require.NoError(t, err)
	assert.False(t, date.IsZero())

	stale, err = s.Stale(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestReimportReplacesSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	importSample(t, s)

	updated := "tconst	averageRating	numVotes\ntt0111161	9.2	3200000\n"
	rows, err := s.importRows(ctx, strings.NewReader(updated))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	r, err := s.Lookup(ctx, "tt0111161")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(3200000), r.Votes)

	// The old snapshot's other titles are gone; a sweep uses exactly
	// one snapshot at a time.
	r, err = s.Lookup(ctx, "tt0000001")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestImportRejectsUnexpectedHeader(t *testing.T) {
	s := openTestStore(t)
	_, err := s.importRows(context.Background(), strings.NewReader("id,rating,votes\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected header")
}
