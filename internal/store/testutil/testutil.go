// Package testutil provides store fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/beatmapdex/internal/store"
)

// Store opens a fresh SQLite store in a temp dir, closed when the test ends.
func Store(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.New(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Date returns a UTC date at midnight.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// Set builds a ranked beatmapset with predictable defaults.
func Set(id int64, ranked time.Time) *store.Beatmapset {
	return &store.Beatmapset{
		ID:         id,
		Artist:     fmt.Sprintf("artist %d", id),
		Creator:    fmt.Sprintf("mapper%d", id),
		Title:      fmt.Sprintf("title %d", id),
		Status:     "ranked",
		RankedDate: &ranked,
	}
}

// Map builds a beatmap of set setID with the given star rating.
func Map(id, setID int64, stars float64) store.Beatmap {
	return store.Beatmap{
		ID:               id,
		BeatmapsetID:     setID,
		Version:          fmt.Sprintf("diff %d", id),
		DifficultyRating: stars,
		Mode:             "osu",
		Status:           "ranked",
		TotalLength:      120,
		AR:               9,
		CS:               4,
		BPM:              180,
		Accuracy:         Ptr(8.0),
		MaxCombo:         Ptr(1000),
	}
}

// Save stores a set with its maps, failing the test on error.
func Save(t *testing.T, s store.Store, set *store.Beatmapset, maps ...store.Beatmap) {
	t.Helper()
	if err := s.SaveBeatmapset(context.Background(), set, maps); err != nil {
		t.Fatalf("save beatmapset %d: %v", set.ID, err)
	}
}
