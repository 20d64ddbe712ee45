package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

var tracer = otel.Tracer("beatmapdex/store")

// Beatmapset is a row of the beatmapsets table.
type Beatmapset struct {
	ID             int64      `db:"id" json:"id"`
	Artist         string     `db:"artist" json:"artist"`
	ArtistUnicode  *string    `db:"artist_unicode" json:"artist_unicode"`
	Creator        string     `db:"creator" json:"creator"`
	FavouriteCount int        `db:"favourite_count" json:"favourite_count"`
	PlayCount      int        `db:"play_count" json:"play_count"`
	Status         string     `db:"status" json:"status"`
	Title          string     `db:"title" json:"title"`
	TitleUnicode   *string    `db:"title_unicode" json:"title_unicode"`
	Source         *string    `db:"source" json:"source"`
	UserID         *int64     `db:"user_id" json:"user_id"`
	NSFW           bool       `db:"nsfw" json:"nsfw"`
	Video          bool       `db:"video" json:"video"`
	Storyboard     bool       `db:"storyboard" json:"storyboard"`
	BPM            *float64   `db:"bpm" json:"bpm"`
	Rating         *float64   `db:"rating" json:"rating"`
	Tags           *string    `db:"tags" json:"tags"`
	Covers         string     `db:"covers" json:"-"`
	RankedDate     *time.Time `db:"ranked_date" json:"ranked_date"`
	SubmittedDate  *time.Time `db:"submitted_date" json:"submitted_date"`
	LastUpdated    *time.Time `db:"last_updated" json:"last_updated"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Beatmap is a row of the beatmaps table: one difficulty of a beatmapset.
type Beatmap struct {
	ID               int64      `db:"id" json:"id"`
	BeatmapsetID     int64      `db:"beatmapset_id" json:"beatmapset_id"`
	Version          string     `db:"version" json:"version"`
	DifficultyRating float64    `db:"difficulty_rating" json:"difficulty_rating"`
	Mode             string     `db:"mode" json:"mode"`
	ModeInt          *int       `db:"mode_int" json:"mode_int"`
	Status           string     `db:"status" json:"status"`
	TotalLength      int        `db:"total_length" json:"total_length"`
	HitLength        *int       `db:"hit_length" json:"hit_length"`
	UserID           *int64     `db:"user_id" json:"user_id"`
	Accuracy         *float64   `db:"accuracy" json:"accuracy"`
	AR               float64    `db:"ar" json:"ar"`
	CS               float64    `db:"cs" json:"cs"`
	BPM              float64    `db:"bpm" json:"bpm"`
	Drain            *float64   `db:"drain" json:"drain"`
	Passcount        *int       `db:"passcount" json:"passcount"`
	Playcount        *int       `db:"playcount" json:"playcount"`
	MaxCombo         *int       `db:"max_combo" json:"max_combo"`
	CountCircles     *int       `db:"count_circles" json:"count_circles"`
	CountSliders     *int       `db:"count_sliders" json:"count_sliders"`
	CountSpinners    *int       `db:"count_spinners" json:"count_spinners"`
	Checksum         *string    `db:"checksum" json:"checksum"`
	URL              *string    `db:"url" json:"url"`
	LastUpdated      *time.Time `db:"last_updated" json:"last_updated"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Store is the persistence interface.
type Store interface {
	SaveBeatmapset(ctx context.Context, set *Beatmapset, maps []Beatmap) error
	GetBeatmapset(ctx context.Context, id int64) (*Beatmapset, error)
	ListBeatmaps(ctx context.Context, setID int64) ([]Beatmap, error)
	DeleteBeatmapset(ctx context.Context, id int64) error
	CountBeatmapsetsByStatus(ctx context.Context) (map[string]int, error)

	ListSetKeys(ctx context.Context, q SetQuery) ([]SetKey, error)
	ListSearchRows(ctx context.Context, conds []Condition, setIDs []int64) ([]SearchRow, error)

	Ping(ctx context.Context) error
	Close() error
}

// SQLStore implements Store on database/sql through sqlx. It speaks both
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib).
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// New opens the database and runs migrations.
func New(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		dsn = sqliteDSN(dsn)
	case DriverPostgres, "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if _, err := db.Exec(schemaFor(driver)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

// sqliteDSN turns a bare path into a modernc DSN with foreign keys on, so
// deleting a beatmapset cascades to its beatmaps. Times are written as
// "2006-01-02 15:04:05.999999999-07:00", which sorts correctly as text for
// the UTC values the store writes.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const upsertBeatmapset = `
	INSERT INTO beatmapsets (
		id, artist, artist_unicode, creator, favourite_count, play_count, status, title,
		title_unicode, source, user_id, nsfw, video, storyboard, bpm, rating, tags, covers,
		ranked_date, submitted_date, last_updated, created_at, updated_at
	) VALUES (
		:id, :artist, :artist_unicode, :creator, :favourite_count, :play_count, :status, :title,
		:title_unicode, :source, :user_id, :nsfw, :video, :storyboard, :bpm, :rating, :tags, :covers,
		:ranked_date, :submitted_date, :last_updated, :created_at, :updated_at
	)
	ON CONFLICT(id) DO UPDATE SET
		artist = excluded.artist,
		artist_unicode = excluded.artist_unicode,
		creator = excluded.creator,
		favourite_count = excluded.favourite_count,
		play_count = excluded.play_count,
		status = excluded.status,
		title = excluded.title,
		title_unicode = excluded.title_unicode,
		source = excluded.source,
		nsfw = excluded.nsfw,
		video = excluded.video,
		storyboard = excluded.storyboard,
		bpm = excluded.bpm,
		rating = excluded.rating,
		tags = excluded.tags,
		covers = excluded.covers,
		ranked_date = excluded.ranked_date,
		submitted_date = excluded.submitted_date,
		last_updated = excluded.last_updated,
		updated_at = excluded.updated_at
`

const upsertBeatmap = `
	INSERT INTO beatmaps (
		id, beatmapset_id, version, difficulty_rating, mode, mode_int, status, total_length,
		hit_length, user_id, accuracy, ar, cs, bpm, drain, passcount, playcount, max_combo,
		count_circles, count_sliders, count_spinners, checksum, url, last_updated, created_at, updated_at
	) VALUES (
		:id, :beatmapset_id, :version, :difficulty_rating, :mode, :mode_int, :status, :total_length,
		:hit_length, :user_id, :accuracy, :ar, :cs, :bpm, :drain, :passcount, :playcount, :max_combo,
		:count_circles, :count_sliders, :count_spinners, :checksum, :url, :last_updated, :created_at, :updated_at
	)
	ON CONFLICT(id) DO UPDATE SET
		beatmapset_id = excluded.beatmapset_id,
		version = excluded.version,
		difficulty_rating = excluded.difficulty_rating,
		mode = excluded.mode,
		mode_int = excluded.mode_int,
		status = excluded.status,
		total_length = excluded.total_length,
		hit_length = excluded.hit_length,
		accuracy = excluded.accuracy,
		ar = excluded.ar,
		cs = excluded.cs,
		bpm = excluded.bpm,
		drain = excluded.drain,
		passcount = excluded.passcount,
		playcount = excluded.playcount,
		max_combo = excluded.max_combo,
		count_circles = excluded.count_circles,
		count_sliders = excluded.count_sliders,
		count_spinners = excluded.count_spinners,
		checksum = excluded.checksum,
		url = excluded.url,
		last_updated = excluded.last_updated,
		updated_at = excluded.updated_at
`

// SaveBeatmapset upserts a beatmapset and its beatmaps in one transaction.
func (s *SQLStore) SaveBeatmapset(ctx context.Context, set *Beatmapset, maps []Beatmap) (err error) {
	ctx, span := tracer.Start(ctx, "Store.SaveBeatmapset", trace.WithAttributes(
		attribute.Int64("beatmapset_id", set.ID),
		attribute.Int("beatmaps", len(maps)),
	))
	defer func() { endSpan(span, err) }()

	now := time.Now().UTC().Truncate(time.Microsecond)
	set.normalize(now)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin beatmapset %d: %w", set.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, upsertBeatmapset, set); err != nil {
		return fmt.Errorf("upsert beatmapset %d: %w", set.ID, err)
	}
	for i := range maps {
		m := &maps[i]
		m.BeatmapsetID = set.ID
		m.normalize(now)
		if _, err = tx.NamedExecContext(ctx, upsertBeatmap, m); err != nil {
			return fmt.Errorf("upsert beatmap %d: %w", m.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit beatmapset %d: %w", set.ID, err)
	}
	return nil
}

func (s *SQLStore) GetBeatmapset(ctx context.Context, id int64) (*Beatmapset, error) {
	var set Beatmapset
	err := s.db.GetContext(ctx, &set, s.db.Rebind("SELECT * FROM beatmapsets WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get beatmapset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get beatmapset %d: %w", id, err)
	}
	return &set, nil
}

func (s *SQLStore) ListBeatmaps(ctx context.Context, setID int64) ([]Beatmap, error) {
	var maps []Beatmap
	err := s.db.SelectContext(ctx, &maps,
		s.db.Rebind("SELECT * FROM beatmaps WHERE beatmapset_id = ? ORDER BY difficulty_rating DESC, id DESC"),
		setID)
	if err != nil {
		return nil, fmt.Errorf("list beatmaps %d: %w", setID, err)
	}
	return maps, nil
}

// DeleteBeatmapset removes a beatmapset; its beatmaps go with it.
func (s *SQLStore) DeleteBeatmapset(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM beatmapsets WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete beatmapset %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete beatmapset %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) CountBeatmapsetsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT status, COUNT(*) AS cnt FROM beatmapsets GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count beatmapsets by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var cnt int
		if err := rows.Scan(&status, &cnt); err != nil {
			return nil, err
		}
		counts[status] = cnt
	}
	return counts, rows.Err()
}

func (b *Beatmapset) normalize(now time.Time) {
	b.RankedDate = utcPtr(b.RankedDate)
	b.SubmittedDate = utcPtr(b.SubmittedDate)
	b.LastUpdated = utcPtr(b.LastUpdated)
	if b.Covers == "" {
		b.Covers = "{}"
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func (b *Beatmap) normalize(now time.Time) {
	b.LastUpdated = utcPtr(b.LastUpdated)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// utcPtr stores timestamps in UTC at microsecond precision, the precision of
// both backends and of the search cursor.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
