// Package search answers beatmap searches: it turns query parameters into
// store conditions, pages through matching beatmapsets newest-ranked first
// and formats their beatmaps.
package search

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/internal/metrics"
	"github.com/elonfeng/beatmapdex/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var tracer = otel.Tracer("beatmapdex/search")

// Store is the read side of the store a search runs against.
type Store interface {
	ListSetKeys(ctx context.Context, q store.SetQuery) ([]store.SetKey, error)
	ListSearchRows(ctx context.Context, conds []store.Condition, setIDs []int64) ([]store.SearchRow, error)
}

// Result is one beatmap of a search page, flattened with its set's fields.
type Result struct {
	ID               int64    `json:"id"`
	BeatmapsetID     int64    `json:"beatmapset_id"`
	Version          string   `json:"version"`
	DifficultyRating float64  `json:"difficulty_rating"`
	AR               float64  `json:"ar"`
	CS               float64  `json:"cs"`
	BPM              float64  `json:"bpm"`
	TotalLength      int      `json:"total_length"`
	Mode             string   `json:"mode"`
	Status           string   `json:"status"`
	Title            string   `json:"title"`
	Artist           string   `json:"artist"`
	Creator          string   `json:"creator"`
	FavouriteCount   int      `json:"favourite_count"`
	PlayCount        int      `json:"play_count"`
	RankedDate       string   `json:"ranked_date"`
	Tags             *string  `json:"tags"`
	Accuracy         *float64 `json:"accuracy"`
	MaxCombo         *int     `json:"max_combo"`
}

// Page is one page of search results. Cursor is nil on the last page.
type Page struct {
	Results []Result `json:"results"`
	Cursor  *string  `json:"cursor"`
	Count   int      `json:"count"`
}

// Engine runs searches against a Store. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	store        Store
	log          *logger.Logger
	defaultLimit int
	maxLimit     int
}

// NewEngine creates a search engine. Non-positive limits fall back to
// DefaultLimit and MaxLimit.
func NewEngine(s Store, log *logger.Logger, defaultLimit, maxLimit int) *Engine {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		store:        s,
		log:          log,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// Search returns one page of beatmaps matching p. Pages hold at most limit
// beatmapsets; every beatmap of a set that passes the beatmap-level filters
// is included. Malformed parameters and cursors are logged and ignored; a
// store failure fails the whole search.
func (e *Engine) Search(ctx context.Context, p Params) (page *Page, err error) {
	ctx, span := tracer.Start(ctx, "Engine.Search")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.SearchRequests.WithLabelValues("error").Inc()
		} else {
			metrics.SearchRequests.WithLabelValues("ok").Inc()
		}
		span.End()
	}()

	timer := prometheus.NewTimer(metrics.SearchDuration)
	defer timer.ObserveDuration()

	limit := parseLimit(p.Get("limit"), e.defaultLimit, e.maxLimit)
	conds := conditions(p, e.log)

	var after *store.SetKey
	if raw := p.Get("cursor"); raw != "" {
		key, err := DecodeCursor(raw)
		if err != nil {
			e.log.Warn("ignoring malformed cursor", "cursor", raw, "error", err)
			metrics.SearchParamsRejected.WithLabelValues("cursor").Inc()
		} else {
			after = key
		}
	}

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("conditions", len(conds)),
		attribute.Bool("cursor", after != nil),
	)

	keys, err := e.store.ListSetKeys(ctx, store.SetQuery{
		Conditions: conds,
		After:      after,
		Limit:      limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("list beatmapsets: %w", err)
	}

	hasMore := len(keys) > limit
	if hasMore {
		keys = keys[:limit]
	}

	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = k.SetID
	}
	rows, err := e.store.ListSearchRows(ctx, conds, ids)
	if err != nil {
		return nil, fmt.Errorf("list beatmaps: %w", err)
	}

	page = &Page{Results: make([]Result, 0, len(rows))}
	for i := range rows {
		page.Results = append(page.Results, format(&rows[i]))
	}
	page.Count = len(page.Results)
	if hasMore {
		next := EncodeCursor(keys[len(keys)-1])
		page.Cursor = &next
	}

	span.AddEvent("page", trace.WithAttributes(
		attribute.Int("sets", len(keys)),
		attribute.Int("results", page.Count),
		attribute.Bool("has_more", hasMore),
	))
	return page, nil
}

func format(r *store.SearchRow) Result {
	return Result{
		ID:               r.ID,
		BeatmapsetID:     r.BeatmapsetID,
		Version:          r.Version,
		DifficultyRating: r.DifficultyRating,
		AR:               r.AR,
		CS:               r.CS,
		BPM:              r.BPM,
		TotalLength:      r.TotalLength,
		Mode:             r.Mode,
		Status:           r.Status,
		Title:            r.Title,
		Artist:           r.Artist,
		Creator:          r.Creator,
		FavouriteCount:   r.FavouriteCount,
		PlayCount:        r.PlayCount,
		RankedDate:       FormatTime(r.RankedDate.Time),
		Tags:             r.Tags,
		Accuracy:         r.Accuracy,
		MaxCombo:         r.MaxCombo,
	}
}
