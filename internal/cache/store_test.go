// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBucket_PutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	b := s.Bucket(ProviderCache)

	in := samplePayload{Name: "heat", Score: 8.3}
	require.NoError(t, b.Put("tmdb:movie:949", KindProviderResponse, in, time.Hour))

	var out samplePayload
	hit, err := b.Get("tmdb:movie:949", KindProviderResponse, &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, in, out)
}

func TestBucket_MissOnAbsent(t *testing.T) {
	s := newTestStore(t)
	b := s.Bucket(ProviderCache)

	var out samplePayload
	hit, err := b.Get("nope", KindProviderResponse, &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestBucket_MissAfterExpiry(t *testing.T) {
	s := newTestStore(t)
	b := s.Bucket(ProviderCache)

	require.NoError(t, b.Put("short", KindProviderResponse, samplePayload{Name: "x"}, 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	var out samplePayload
	hit, err := b.Get("short", KindProviderResponse, &out)
	require.NoError(t, err)
	require.False(t, hit, "expired entry must read as a miss")
}

func TestBucket_WrongKindIsMiss(t *testing.T) {
	s := newTestStore(t)
	b := s.Bucket(AggregateCache)

	require.NoError(t, b.Put("k", KindProviderResponse, samplePayload{Name: "x"}, time.Hour))

	var out samplePayload
	hit, err := b.Get("k", KindBatchReport, &out)
	require.NoError(t, err, "wrong-kind payload must degrade to a miss, not an error")
	require.False(t, hit)
}

func TestBucket_BucketsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	provider := s.Bucket(ProviderCache)
	aggregate := s.Bucket(AggregateCache)

	require.NoError(t, provider.Put("same-key", KindProviderResponse, samplePayload{Name: "p"}, time.Hour))

	var out samplePayload
	hit, err := aggregate.Get("same-key", KindProviderResponse, &out)
	require.NoError(t, err)
	require.False(t, hit, "buckets must not share keys")
}

func TestBucket_DeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	b := s.Bucket(ProviderCache)

	require.NoError(t, b.Put("k", KindProviderResponse, samplePayload{}, time.Hour))
	require.NoError(t, b.Delete("k"))
	require.NoError(t, b.Delete("k"))

	var out samplePayload
	hit, err := b.Get("k", KindProviderResponse, &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestDecode_CorruptBytes(t *testing.T) {
	t.Parallel()

	var out samplePayload
	err := Decode([]byte("definitely not zlib"), KindProviderResponse, &out)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestEncodeDecode_PreservesKind(t *testing.T) {
	t.Parallel()

	raw, err := Encode(KindUsageRecord, map[string]int{"count": 3})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, Decode(raw, KindUsageRecord, &out))
	require.Equal(t, 3, out["count"])

	require.ErrorIs(t, Decode(raw, KindProviderResponse, &out), ErrCorrupt)
}
