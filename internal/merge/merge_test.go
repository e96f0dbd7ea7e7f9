// Criticus - Multi-Provider Ratings Aggregation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/criticus

package merge

import (
	"testing"

	"github.com/tomtom215/criticus/internal/models"
)

var testPriorities = map[string]int{
	"dataset": 110,
	"tmdb":    100,
	"trakt":   100,
	"mdblist": 90,
	"omdb":    50,
}

func result(source string, ratings map[string]models.RatingValue) *models.ProviderResult {
	return &models.ProviderResult{Source: source, Ratings: ratings}
}

func TestMergePriorityWins(t *testing.T) {
	merged := Merge([]*models.ProviderResult{
		result("omdb", map[string]models.RatingValue{
			"imdb": {Rating: 8.5, Votes: 9_000_000},
		}),
		result("dataset", map[string]models.RatingValue{
			"imdb": {Rating: 8.7, Votes: 2_000_000},
		}),
	}, testPriorities)

	w, ok := merged["imdb"]
	if !ok {
		t.Fatal("expected imdb key in merged result")
	}
	if w.Provider != "dataset" {
		t.Errorf("winner = %s, want dataset (priority beats votes)", w.Provider)
	}
	if w.Rating != 8.7 {
		t.Errorf("rating = %v, want 8.7", w.Rating)
	}
}

func TestMergePriorityTieBrokenByVotes(t *testing.T) {
	merged := Merge([]*models.ProviderResult{
		result("tmdb", map[string]models.RatingValue{
			"shared": {Rating: 8.0, Votes: 100},
		}),
		result("trakt", map[string]models.RatingValue{
			"shared": {Rating: 7.5, Votes: 5000},
		}),
	}, testPriorities)

	if w := merged["shared"]; w.Provider != "trakt" {
		t.Errorf("winner = %s, want trakt (more votes at equal priority)", w.Provider)
	}
}

func TestMergeDisjointKeysAllKept(t *testing.T) {
	merged := Merge([]*models.ProviderResult{
		result("tmdb", map[string]models.RatingValue{"themoviedb": {Rating: 8.2, Votes: 26000}}),
		result("trakt", map[string]models.RatingValue{"trakt": {Rating: 8.4, Votes: 40000}}),
		result("mdblist", map[string]models.RatingValue{"tomatoes": {Rating: 8.8, Votes: 350}}),
	}, testPriorities)

	if len(merged) != 3 {
		t.Fatalf("merged keys = %d, want 3", len(merged))
	}
}

func TestMergeUnknownProviderRanksLowest(t *testing.T) {
	merged := Merge([]*models.ProviderResult{
		result("mystery", map[string]models.RatingValue{"imdb": {Rating: 1.0, Votes: 99_999_999}}),
		result("omdb", map[string]models.RatingValue{"imdb": {Rating: 8.5, Votes: 10}}),
	}, testPriorities)

	if w := merged["imdb"]; w.Provider != "omdb" {
		t.Errorf("winner = %s, want omdb (unprioritized providers lose)", w.Provider)
	}
}

func TestMergeEmptyAndNilResults(t *testing.T) {
	merged := Merge([]*models.ProviderResult{nil, result("tmdb", nil)}, testPriorities)
	if len(merged) != 0 {
		t.Errorf("merged keys = %d, want 0", len(merged))
	}
}

func TestPrepareFinalAddsAndPreserves(t *testing.T) {
	stored := map[string]models.RatingValue{
		"metacritic": {Rating: 7.3, Votes: 40},
	}
	merged := map[string]Winner{
		"imdb": {RatingValue: models.RatingValue{Rating: 8.7, Votes: 2_000_000}, Provider: "dataset"},
	}

	final, changes := PrepareFinal("Test", stored, merged, "imdb")
	if changes.Added != 1 || changes.Updated != 0 {
		t.Fatalf("changes = %+v, want 1 added", changes)
	}
	if _, ok := final["metacritic"]; !ok {
		t.Error("stored key untouched by this run must be preserved")
	}
	if !changes.Dirty() {
		t.Error("an addition must mark the record dirty")
	}
}

func TestPrepareFinalNeverRegressesEvidence(t *testing.T) {
	stored := map[string]models.RatingValue{
		"imdb": {Rating: 7.0, Votes: 5000},
	}
	merged := map[string]Winner{
		"imdb": {RatingValue: models.RatingValue{Rating: 6.5, Votes: 10}, Provider: "omdb"},
	}

	final, changes := PrepareFinal("Test", stored, merged, "imdb")
	if changes.Updated != 0 {
		t.Fatalf("changes = %+v, want no update", changes)
	}
	if final["imdb"].Rating != 7.0 || final["imdb"].Votes != 5000 {
		t.Errorf("stored value regressed to %+v", final["imdb"])
	}
	if changes.Dirty() {
		t.Error("no addition or update means no write-back")
	}
}

func TestPrepareFinalStrictlyGreaterVotesUpdate(t *testing.T) {
	stored := map[string]models.RatingValue{
		"imdb": {Rating: 7.0, Votes: 5000},
	}

	// Equal votes: keep stored.
	_, changes := PrepareFinal("Test", stored, map[string]Winner{
		"imdb": {RatingValue: models.RatingValue{Rating: 7.5, Votes: 5000}},
	}, "imdb")
	if changes.Updated != 0 {
		t.Error("equal vote count must not update")
	}

	// Strictly greater: update.
	final, changes := PrepareFinal("Test", stored, map[string]Winner{
		"imdb": {RatingValue: models.RatingValue{Rating: 7.5, Votes: 5001}},
	}, "imdb")
	if changes.Updated != 1 || final["imdb"].Rating != 7.5 {
		t.Errorf("strictly greater votes must update, got %+v %+v", changes, final["imdb"])
	}
}

func TestPrepareFinalClampsOutOfRange(t *testing.T) {
	merged := map[string]Winner{
		"weird": {RatingValue: models.RatingValue{Rating: 10.4, Votes: 5}},
		"low":   {RatingValue: models.RatingValue{Rating: -0.2, Votes: 5}},
	}

	final, changes := PrepareFinal("Test", nil, merged, "imdb")
	if changes.Clamped != 2 {
		t.Fatalf("clamped = %d, want 2", changes.Clamped)
	}
	if final["weird"].Rating != 10.0 {
		t.Errorf("rating = %v, want 10.0", final["weird"].Rating)
	}
	if final["low"].Rating != 0 {
		t.Errorf("rating = %v, want 0", final["low"].Rating)
	}
}

func TestPrepareFinalDefaultMarking(t *testing.T) {
	merged := map[string]Winner{
		"imdb":  {RatingValue: models.RatingValue{Rating: 8.7, Votes: 100}},
		"trakt": {RatingValue: models.RatingValue{Rating: 8.4, Votes: 200}},
	}

	final, _ := PrepareFinal("Test", nil, merged, "imdb")
	if !final["imdb"].Default || final["trakt"].Default {
		t.Error("configured default source must be marked when present")
	}

	// Preferred source absent: first key in sorted order wins.
	final, _ = PrepareFinal("Test", nil, map[string]Winner{
		"trakt":    {RatingValue: models.RatingValue{Rating: 8.4, Votes: 200}},
		"tomatoes": {RatingValue: models.RatingValue{Rating: 9.0, Votes: 50}},
	}, "imdb")

	defaults := 0
	for _, v := range final {
		if v.Default {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("defaults marked = %d, want exactly 1", defaults)
	}
	if !final["tomatoes"].Default {
		t.Error("fallback default must be first key in sorted order")
	}
}
