// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package cache

import (
	"testing"
	"time"
)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestBaseTTL_Precedence(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in48h := now.Add(48 * time.Hour)
	in10min := now.Add(10 * time.Minute)
	past := now.Add(-time.Hour)
	released30d := now.Add(-days(30))
	released200d := now.Add(-days(200))
	released2y := now.Add(-days(730))

	tests := []struct {
		name  string
		hints LifecycleHints
		want  time.Duration
	}{
		{
			name:  "future schedule wins over everything",
			hints: LifecycleHints{LibraryMember: true, NextScheduled: &in48h, Status: "Ended", ReleaseDate: &released2y},
			want:  48 * time.Hour,
		},
		{
			name:  "near schedule clamped to minimum hour",
			hints: LifecycleHints{LibraryMember: true, NextScheduled: &in10min},
			want:  time.Hour,
		},
		{
			name:  "past schedule ignored, falls through to status",
			hints: LifecycleHints{LibraryMember: true, NextScheduled: &past, Status: "Returning Series"},
			want:  ttlOngoing,
		},
		{
			name:  "ended show is stable",
			hints: LifecycleHints{LibraryMember: true, Status: "Ended"},
			want:  ttlStable,
		},
		{
			name:  "canceled show is stable",
			hints: LifecycleHints{LibraryMember: true, Status: "Canceled"},
			want:  ttlStable,
		},
		{
			name:  "ongoing unscheduled show",
			hints: LifecycleHints{LibraryMember: true, Status: "Returning Series"},
			want:  ttlOngoing,
		},
		{
			name:  "fresh release is volatile",
			hints: LifecycleHints{LibraryMember: true, ReleaseDate: &released30d},
			want:  ttlVolatile,
		},
		{
			name:  "half-year-old release",
			hints: LifecycleHints{LibraryMember: true, ReleaseDate: &released200d},
			want:  ttlSettling,
		},
		{
			name:  "old release is stable",
			hints: LifecycleHints{LibraryMember: true, ReleaseDate: &released2y},
			want:  ttlStable,
		},
		{
			name:  "no hints at all",
			hints: LifecycleHints{LibraryMember: true},
			want:  ttlVolatile,
		},
		{
			name:  "non-library item is always volatile",
			hints: LifecycleHints{LibraryMember: false, NextScheduled: &in48h, Status: "Ended"},
			want:  ttlVolatile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := baseTTL(now, tt.hints); got != tt.want {
				t.Errorf("baseTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeTTL_JitterBounds(t *testing.T) {
	t.Parallel()

	now := time.Now()
	in48h := now.Add(48 * time.Hour)
	hints := LifecycleHints{LibraryMember: true, NextScheduled: &in48h}

	base := float64(48 * time.Hour)
	lo := time.Duration(base * 0.89)
	hi := time.Duration(base * 1.11)

	for i := 0; i < 200; i++ {
		got := ComputeTTL(now, hints)
		if got < lo || got > hi {
			t.Fatalf("ComputeTTL() = %v, want within [%v, %v]", got, lo, hi)
		}
	}
}

func TestComputeTTL_JitterVaries(t *testing.T) {
	t.Parallel()

	now := time.Now()
	hints := LifecycleHints{LibraryMember: true, Status: "Ended"}

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 50; i++ {
		seen[ComputeTTL(now, hints)] = struct{}{}
	}
	if len(seen) < 2 {
		t.Error("ComputeTTL() returned a constant; expected jitter to vary results")
	}
}
