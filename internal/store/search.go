package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Column is a qualified column of the beatmaps (b) x beatmapsets (s) join
// that search conditions may reference.
type Column string

const (
	ColSetStatus         Column = "s.status"
	ColSetCreator        Column = "s.creator"
	ColSetArtist         Column = "s.artist"
	ColSetTitle          Column = "s.title"
	ColSetTags           Column = "s.tags"
	ColSetRankedDate     Column = "s.ranked_date"
	ColSetFavouriteCount Column = "s.favourite_count"
	ColSetPlayCount      Column = "s.play_count"

	ColDifficultyRating Column = "b.difficulty_rating"
	ColAR               Column = "b.ar"
	ColCS               Column = "b.cs"
	ColBPM              Column = "b.bpm"
	ColTotalLength      Column = "b.total_length"
	ColMode             Column = "b.mode"
)

var searchColumns = map[Column]bool{
	ColSetStatus:         true,
	ColSetCreator:        true,
	ColSetArtist:         true,
	ColSetTitle:          true,
	ColSetTags:           true,
	ColSetRankedDate:     true,
	ColSetFavouriteCount: true,
	ColSetPlayCount:      true,
	ColDifficultyRating:  true,
	ColAR:                true,
	ColCS:                true,
	ColBPM:               true,
	ColTotalLength:       true,
	ColMode:              true,
}

// Op is a comparison applied by a Condition.
type Op string

const (
	OpEq       Op = "="
	OpGte      Op = ">="
	OpLte      Op = "<="
	OpIn       Op = "in"       // Value is []string
	OpContains Op = "contains" // case-insensitive substring; Value is string
)

// Condition is one AND-ed predicate of a search.
type Condition struct {
	Column Column
	Op     Op
	Value  any
}

// SetKey is the composite sort key of a beatmapset in search order.
type SetKey struct {
	SetID      int64     `db:"id"`
	RankedDate Timestamp `db:"ranked_date"`
}

// SetQuery selects distinct beatmapsets in (ranked_date DESC, id DESC) order.
// After, when set, keeps only sets strictly after that key.
type SetQuery struct {
	Conditions []Condition
	After      *SetKey
	Limit      int
}

// SearchRow is a beatmap joined with the fields of its beatmapset that a
// search result carries.
type SearchRow struct {
	ID               int64     `db:"id"`
	BeatmapsetID     int64     `db:"beatmapset_id"`
	Version          string    `db:"version"`
	DifficultyRating float64   `db:"difficulty_rating"`
	AR               float64   `db:"ar"`
	CS               float64   `db:"cs"`
	BPM              float64   `db:"bpm"`
	TotalLength      int       `db:"total_length"`
	Mode             string    `db:"mode"`
	Status           string    `db:"status"`
	Accuracy         *float64  `db:"accuracy"`
	MaxCombo         *int      `db:"max_combo"`
	Title            string    `db:"title"`
	Artist           string    `db:"artist"`
	Creator          string    `db:"creator"`
	FavouriteCount   int       `db:"favourite_count"`
	PlayCount        int       `db:"play_count"`
	RankedDate       Timestamp `db:"ranked_date"`
	Tags             *string   `db:"tags"`
}

const searchFrom = `
	FROM beatmaps b
	JOIN beatmapsets s ON s.id = b.beatmapset_id
	WHERE s.ranked_date IS NOT NULL`

// ListSetKeys returns the keys of distinct beatmapsets having at least one
// beatmap that satisfies every condition.
func (s *SQLStore) ListSetKeys(ctx context.Context, q SetQuery) (keys []SetKey, err error) {
	ctx, span := tracer.Start(ctx, "Store.ListSetKeys", trace.WithAttributes(
		attribute.Int("conditions", len(q.Conditions)),
		attribute.Int("limit", q.Limit),
		attribute.Bool("after", q.After != nil),
	))
	defer func() { endSpan(span, err) }()

	where, args, err := renderConditions(s.driver, q.Conditions)
	if err != nil {
		return nil, err
	}

	query := "SELECT DISTINCT s.id, s.ranked_date" + searchFrom + where
	if q.After != nil {
		after := q.After.RankedDate.UTC()
		query += " AND (s.ranked_date < ? OR (s.ranked_date = ? AND s.id < ?))"
		args = append(args, after, after, q.After.SetID)
	}
	query += " ORDER BY s.ranked_date DESC, s.id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand set query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &keys, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list set keys: %w", err)
	}
	return keys, nil
}

// ListSearchRows returns the beatmaps of the given sets that satisfy every
// condition, hardest first within each set.
func (s *SQLStore) ListSearchRows(ctx context.Context, conds []Condition, setIDs []int64) (rows []SearchRow, err error) {
	ctx, span := tracer.Start(ctx, "Store.ListSearchRows", trace.WithAttributes(
		attribute.Int("conditions", len(conds)),
		attribute.Int("sets", len(setIDs)),
	))
	defer func() { endSpan(span, err) }()

	if len(setIDs) == 0 {
		return nil, nil
	}

	where, args, err := renderConditions(s.driver, conds)
	if err != nil {
		return nil, err
	}

	query := `SELECT b.id, b.beatmapset_id, b.version, b.difficulty_rating, b.ar, b.cs, b.bpm,
		b.total_length, b.mode, b.status, b.accuracy, b.max_combo,
		s.title, s.artist, s.creator, s.favourite_count, s.play_count, s.ranked_date, s.tags` +
		searchFrom + " AND b.beatmapset_id IN (?)" + where +
		" ORDER BY s.ranked_date DESC, s.id DESC, b.difficulty_rating DESC, b.id DESC"
	args = append([]any{setIDs}, args...)

	query, args, err = sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand row query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list search rows: %w", err)
	}
	return rows, nil
}

// renderConditions turns conditions into " AND ..." SQL with ? bindvars for
// the given driver. IN values stay slices for sqlx.In to expand.
func renderConditions(dialect string, conds []Condition) (string, []any, error) {
	var sb strings.Builder
	var args []any

	for _, c := range conds {
		if !searchColumns[c.Column] {
			return "", nil, fmt.Errorf("column %q is not searchable", c.Column)
		}
		col := string(c.Column)

		switch c.Op {
		case OpEq, OpGte, OpLte:
			bind := "?"
			if _, ok := c.Value.(float64); ok && dialect == DriverPostgres {
				// Postgres infers int4 for integer columns and rejects 10.5.
				bind = "CAST(? AS DOUBLE PRECISION)"
			}
			sb.WriteString(" AND " + col + " " + string(c.Op) + " " + bind)
			args = append(args, c.Value)
		case OpIn:
			vals, ok := c.Value.([]string)
			if !ok || len(vals) == 0 {
				return "", nil, fmt.Errorf("condition on %s: in needs a non-empty []string", col)
			}
			sb.WriteString(" AND " + col + " IN (?)")
			args = append(args, vals)
		case OpContains:
			v, ok := c.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("condition on %s: contains needs a string", col)
			}
			if dialect == DriverPostgres {
				sb.WriteString(" AND " + col + ` ILIKE ? ESCAPE '\'`)
			} else {
				sb.WriteString(" AND " + sqliteLower + "(" + col + ") LIKE " + sqliteLower + `(?) ESCAPE '\'`)
			}
			args = append(args, "%"+escapeLike(strings.ToLower(v))+"%")
		default:
			return "", nil, fmt.Errorf("condition on %s: unknown operator %q", col, c.Op)
		}
	}
	return sb.String(), args, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Timestamp scans a timestamp from either backend. SQLite may hand back the
// text form when the column type is lost (e.g. under DISTINCT).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	}
	return fmt.Errorf("scan timestamp: unsupported type %T", src)
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognized format %q", s)
}

func (t Timestamp) Value() (driver.Value, error) {
	return t.Time.UTC(), nil
}
