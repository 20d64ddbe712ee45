package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/elonfeng/beatmapdex/internal/store"
	"github.com/elonfeng/beatmapdex/internal/store/testutil"
)

func TestSaveBeatmapsetUpserts(t *testing.T) {
	s := testutil.Store(t)
	ctx := context.Background()

	set := testutil.Set(1, testutil.Date(2024, 1, 10))
	testutil.Save(t, s, set, testutil.Map(10, 1, 5.5), testutil.Map(11, 1, 3.2))

	// Same ids again with new values: no duplicates, fields refreshed.
	set = testutil.Set(1, testutil.Date(2024, 1, 10))
	set.PlayCount = 42
	set.Status = "loved"
	updated := testutil.Map(10, 1, 6.1)
	testutil.Save(t, s, set, updated)

	got, err := s.GetBeatmapset(ctx, 1)
	if err != nil {
		t.Fatalf("GetBeatmapset: %v", err)
	}
	if got.PlayCount != 42 || got.Status != "loved" {
		t.Fatalf("beatmapset not updated: %+v", got)
	}
	if got.RankedDate == nil || !got.RankedDate.Equal(testutil.Date(2024, 1, 10)) {
		t.Fatalf("ranked_date: got %v", got.RankedDate)
	}

	maps, err := s.ListBeatmaps(ctx, 1)
	if err != nil {
		t.Fatalf("ListBeatmaps: %v", err)
	}
	if len(maps) != 2 {
		t.Fatalf("expected 2 beatmaps, got %d", len(maps))
	}
	if maps[0].ID != 10 || maps[0].DifficultyRating != 6.1 {
		t.Fatalf("hardest first: got %+v", maps[0])
	}
	if maps[0].Accuracy == nil || *maps[0].Accuracy != 8 {
		t.Fatalf("accuracy: got %v", maps[0].Accuracy)
	}
}

func TestGetBeatmapsetNotFound(t *testing.T) {
	s := testutil.Store(t)
	_, err := s.GetBeatmapset(context.Background(), 404)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteBeatmapsetCascades(t *testing.T) {
	s := testutil.Store(t)
	ctx := context.Background()
	testutil.Save(t, s, testutil.Set(1, testutil.Date(2024, 1, 1)), testutil.Map(10, 1, 4))

	if err := s.DeleteBeatmapset(ctx, 1); err != nil {
		t.Fatalf("DeleteBeatmapset: %v", err)
	}
	maps, err := s.ListBeatmaps(ctx, 1)
	if err != nil {
		t.Fatalf("ListBeatmaps: %v", err)
	}
	if len(maps) != 0 {
		t.Fatalf("expected beatmaps to be deleted with their set, got %d", len(maps))
	}
}

func TestListSetKeysOrderAndCursor(t *testing.T) {
	s := testutil.Store(t)
	ctx := context.Background()

	day := testutil.Date(2024, 1, 10)
	testutil.Save(t, s, testutil.Set(5, day), testutil.Map(50, 5, 3), testutil.Map(51, 5, 4))
	testutil.Save(t, s, testutil.Set(7, day), testutil.Map(70, 7, 3))
	testutil.Save(t, s, testutil.Set(3, day.Add(time.Hour)), testutil.Map(30, 3, 3))
	testutil.Save(t, s, testutil.Set(9, day.Add(-time.Hour)), testutil.Map(90, 9, 3))

	unranked := testutil.Set(11, day)
	unranked.RankedDate = nil
	testutil.Save(t, s, unranked, testutil.Map(110, 11, 3))

	keys, err := s.ListSetKeys(ctx, store.SetQuery{})
	if err != nil {
		t.Fatalf("ListSetKeys: %v", err)
	}
	want := []int64{3, 7, 5, 9}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, id := range want {
		if keys[i].SetID != id {
			t.Fatalf("key %d: expected set %d, got %d", i, id, keys[i].SetID)
		}
	}
	if !keys[1].RankedDate.Equal(day) {
		t.Fatalf("ranked_date: got %v", keys[1].RankedDate)
	}

	after := keys[1]
	rest, err := s.ListSetKeys(ctx, store.SetQuery{After: &after, Limit: 10})
	if err != nil {
		t.Fatalf("ListSetKeys after: %v", err)
	}
	if len(rest) != 2 || rest[0].SetID != 5 || rest[1].SetID != 9 {
		t.Fatalf("after set 7: got %+v", rest)
	}
}

func TestListSetKeysConditions(t *testing.T) {
	s := testutil.Store(t)
	ctx := context.Background()

	a := testutil.Set(1, testutil.Date(2024, 2, 1))
	a.Artist = "100% Orange_Juice"
	a.Status = "loved"
	testutil.Save(t, s, a, testutil.Map(10, 1, 2))

	b := testutil.Set(2, testutil.Date(2024, 2, 2))
	b.Artist = "100 Orange Juice"
	b.FavouriteCount = 11
	testutil.Save(t, s, b, testutil.Map(20, 2, 7))

	c := testutil.Set(3, testutil.Date(2024, 2, 3))
	c.Artist = "ÉCLAIR Ωmega"
	c.Title = "Ärger über Straßen"
	testutil.Save(t, s, c, testutil.Map(30, 3, 1))

	tests := []struct {
		name  string
		conds []store.Condition
		want  []int64
	}{
		{"literal percent", []store.Condition{{Column: store.ColSetArtist, Op: store.OpContains, Value: "100%"}}, []int64{1}},
		{"literal underscore", []store.Condition{{Column: store.ColSetArtist, Op: store.OpContains, Value: "orange_"}}, []int64{1}},
		{"case insensitive", []store.Condition{{Column: store.ColSetArtist, Op: store.OpContains, Value: "JUICE"}}, []int64{2, 1}},
		{"non-ascii lower term", []store.Condition{{Column: store.ColSetArtist, Op: store.OpContains, Value: "éclair"}}, []int64{3}},
		{"non-ascii upper term", []store.Condition{{Column: store.ColSetArtist, Op: store.OpContains, Value: "ΩMEGA"}}, []int64{3}},
		{"non-ascii exact case", []store.Condition{{Column: store.ColSetArtist, Op: store.OpContains, Value: "ÉCLAIR"}}, []int64{3}},
		{"non-ascii title", []store.Condition{{Column: store.ColSetTitle, Op: store.OpContains, Value: "ärger"}}, []int64{3}},
		{"fractional bound on integer column", []store.Condition{{Column: store.ColSetFavouriteCount, Op: store.OpGte, Value: 10.5}}, []int64{2}},
		{"status in", []store.Condition{{Column: store.ColSetStatus, Op: store.OpIn, Value: []string{"loved", "qualified"}}}, []int64{1}},
		{"stars range", []store.Condition{
			{Column: store.ColDifficultyRating, Op: store.OpGte, Value: 5.0},
			{Column: store.ColDifficultyRating, Op: store.OpLte, Value: 8.0},
		}, []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := s.ListSetKeys(ctx, store.SetQuery{Conditions: tt.conds, Limit: 10})
			if err != nil {
				t.Fatalf("ListSetKeys: %v", err)
			}
			if len(keys) != len(tt.want) {
				t.Fatalf("expected %v, got %+v", tt.want, keys)
			}
			for i, id := range tt.want {
				if keys[i].SetID != id {
					t.Fatalf("expected %v, got %+v", tt.want, keys)
				}
			}
		})
	}
}

func TestListSetKeysRejectsUnknownColumn(t *testing.T) {
	s := testutil.Store(t)
	_, err := s.ListSetKeys(context.Background(), store.SetQuery{
		Conditions: []store.Condition{{Column: "s.id; DROP TABLE beatmaps", Op: store.OpEq, Value: 1}},
	})
	if err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestListSearchRows(t *testing.T) {
	s := testutil.Store(t)
	ctx := context.Background()

	testutil.Save(t, s, testutil.Set(1, testutil.Date(2024, 3, 1)), testutil.Map(10, 1, 2), testutil.Map(11, 1, 6))
	testutil.Save(t, s, testutil.Set(2, testutil.Date(2024, 3, 2)), testutil.Map(20, 2, 4))
	testutil.Save(t, s, testutil.Set(3, testutil.Date(2024, 3, 3)), testutil.Map(30, 3, 5))

	rows, err := s.ListSearchRows(ctx, []store.Condition{
		{Column: store.ColDifficultyRating, Op: store.OpGte, Value: 3.0},
	}, []int64{1, 2})
	if err != nil {
		t.Fatalf("ListSearchRows: %v", err)
	}
	want := []int64{20, 11}
	if len(rows) != len(want) {
		t.Fatalf("expected beatmaps %v, got %+v", want, rows)
	}
	for i, id := range want {
		if rows[i].ID != id {
			t.Fatalf("row %d: expected beatmap %d, got %d", i, id, rows[i].ID)
		}
	}
	if rows[1].Title != "title 1" || !rows[1].RankedDate.Equal(testutil.Date(2024, 3, 1)) {
		t.Fatalf("joined set fields: got %+v", rows[1])
	}
}

func TestCountBeatmapsetsByStatus(t *testing.T) {
	s := testutil.Store(t)
	loved := testutil.Set(2, testutil.Date(2024, 1, 1))
	loved.Status = "loved"
	testutil.Save(t, s, testutil.Set(1, testutil.Date(2024, 1, 1)))
	testutil.Save(t, s, loved)
	testutil.Save(t, s, testutil.Set(3, testutil.Date(2024, 1, 1)))

	counts, err := s.CountBeatmapsetsByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountBeatmapsetsByStatus: %v", err)
	}
	if counts["ranked"] != 2 || counts["loved"] != 1 {
		t.Fatalf("counts: got %v", counts)
	}
}
