package store

import (
	"database/sql/driver"
	"reflect"
	"strings"
	"testing"
)

func TestRenderConditionsPostgres(t *testing.T) {
	where, args, err := renderConditions(DriverPostgres, []Condition{
		{Column: ColSetFavouriteCount, Op: OpGte, Value: 10.5},
		{Column: ColTotalLength, Op: OpLte, Value: 90.5},
		{Column: ColSetArtist, Op: OpContains, Value: "ÉCLAIR"},
	})
	if err != nil {
		t.Fatalf("renderConditions: %v", err)
	}

	want := " AND s.favourite_count >= CAST(? AS DOUBLE PRECISION)" +
		" AND b.total_length <= CAST(? AS DOUBLE PRECISION)" +
		` AND s.artist ILIKE ? ESCAPE '\'`
	if where != want {
		t.Fatalf("where:\n got %q\nwant %q", where, want)
	}
	if !reflect.DeepEqual(args, []any{10.5, 90.5, "%éclair%"}) {
		t.Fatalf("args: %v", args)
	}
}

func TestRenderConditionsSQLite(t *testing.T) {
	where, args, err := renderConditions(DriverSQLite, []Condition{
		{Column: ColSetFavouriteCount, Op: OpGte, Value: 10.5},
		{Column: ColSetTitle, Op: OpContains, Value: "50%"},
	})
	if err != nil {
		t.Fatalf("renderConditions: %v", err)
	}
	if strings.Contains(where, "CAST") {
		t.Fatalf("sqlite compares numbers without casts: %q", where)
	}
	if !strings.Contains(where, `ulower(s.title) LIKE ulower(?) ESCAPE '\'`) {
		t.Fatalf("where: %q", where)
	}
	if !reflect.DeepEqual(args, []any{10.5, `%50\%%`}) {
		t.Fatalf("args: %v", args)
	}
}

func TestFoldLower(t *testing.T) {
	tests := []struct {
		in   driver.Value
		want driver.Value
	}{
		{"ÉCLAIR Ωmega", "éclair ωmega"},
		{[]byte("ÄRGER"), "ärger"},
		{nil, nil},
		{int64(7), int64(7)},
	}
	for _, tt := range tests {
		got, err := foldLower(nil, []driver.Value{tt.in})
		if err != nil {
			t.Fatalf("foldLower(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("foldLower(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
