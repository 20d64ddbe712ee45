package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/internal/metrics"
	"github.com/elonfeng/beatmapdex/internal/store"
	"github.com/elonfeng/beatmapdex/pkg/osu"
)

// Source pages through beatmapsets, newest ranked first.
type Source interface {
	SearchBeatmapsets(ctx context.Context, mode string, cursor *osu.Cursor) (*osu.SearchResponse, error)
}

// Sink persists one beatmapset with its beatmaps.
type Sink interface {
	SaveBeatmapset(ctx context.Context, set *store.Beatmapset, maps []store.Beatmap) error
}

// Stats summarizes one import run.
type Stats struct {
	RunID          string     `json:"run_id"`
	Requests       int        `json:"requests"`
	Beatmapsets    int        `json:"beatmapsets"`
	Beatmaps       int        `json:"beatmaps"`
	Failed         int        `json:"failed"`
	LastRankedDate *time.Time `json:"last_ranked_date,omitempty"`
}

// ErrRunning is returned by Run while another run of the same Importer is
// in progress.
var ErrRunning = errors.New("an import is already running")

// Importer copies beatmapsets from the osu! API into the store. At most one
// Run is in progress at a time.
type Importer struct {
	source      Source
	sink        Sink
	log         *logger.Logger
	mode        string
	maxRequests int

	running sync.Mutex
}

// New creates an importer. maxRequests bounds the number of API pages per run.
func New(src Source, sink Sink, log *logger.Logger, mode string, maxRequests int) *Importer {
	if maxRequests <= 0 {
		maxRequests = 1000
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{
		source:      src,
		sink:        sink,
		log:         log,
		mode:        mode,
		maxRequests: maxRequests,
	}
}

// Run pages through the API until a page comes back empty, the API has no
// further cursor, or maxRequests pages were fetched. A beatmapset that fails
// to store is logged and skipped; a failed API call ends the run with an error.
// Run returns ErrRunning without importing if a run is already in progress.
func (im *Importer) Run(ctx context.Context) (Stats, error) {
	if !im.running.TryLock() {
		metrics.ImportRuns.WithLabelValues("skipped").Inc()
		return Stats{}, ErrRunning
	}
	defer im.running.Unlock()

	stats := Stats{RunID: uuid.NewString()}
	log := im.log.With("run_id", stats.RunID)

	timer := prometheus.NewTimer(metrics.ImportDuration)
	defer timer.ObserveDuration()

	log.Info("starting beatmap import", "mode", im.mode, "max_requests", im.maxRequests)

	var cursor *osu.Cursor
	for stats.Requests < im.maxRequests {
		if err := ctx.Err(); err != nil {
			metrics.ImportRuns.WithLabelValues("cancelled").Inc()
			return stats, err
		}

		page, err := im.source.SearchBeatmapsets(ctx, im.mode, cursor)
		stats.Requests++
		if err != nil {
			log.Error("beatmapset request failed", "request", stats.Requests, "error", err)
			metrics.ImportRuns.WithLabelValues("error").Inc()
			return stats, fmt.Errorf("fetch page %d: %w", stats.Requests, err)
		}
		if len(page.Beatmapsets) == 0 {
			break
		}

		for i := range page.Beatmapsets {
			im.process(ctx, log, &page.Beatmapsets[i], &stats)
		}

		cursor = page.Next()
		if cursor == nil {
			break
		}
	}

	metrics.ImportRuns.WithLabelValues("ok").Inc()
	log.Info("import completed",
		"requests", stats.Requests,
		"beatmapsets", stats.Beatmapsets,
		"beatmaps", stats.Beatmaps,
		"failed", stats.Failed,
	)
	return stats, nil
}

func (im *Importer) process(ctx context.Context, log *logger.Logger, src *osu.Beatmapset, stats *Stats) {
	set, maps := Convert(src)
	if err := im.sink.SaveBeatmapset(ctx, set, maps); err != nil {
		stats.Failed++
		metrics.ImportFailures.Inc()
		log.Error("failed to store beatmapset", "beatmapset_id", src.ID, "error", err)
		return
	}

	stats.Beatmapsets++
	stats.Beatmaps += len(maps)
	metrics.ImportedRows.WithLabelValues("beatmapset").Inc()
	metrics.ImportedRows.WithLabelValues("beatmap").Add(float64(len(maps)))
	if set.RankedDate != nil {
		stats.LastRankedDate = set.RankedDate
	}

	if stats.Beatmapsets%100 == 0 {
		log.Info("import progress", "beatmapsets", stats.Beatmapsets, "beatmaps", stats.Beatmaps)
	}
}

// Convert maps an API beatmapset onto store rows.
func Convert(src *osu.Beatmapset) (*store.Beatmapset, []store.Beatmap) {
	tags := JoinTags(src.Tags)
	covers := "{}"
	if len(src.Covers) > 0 && string(src.Covers) != "null" {
		covers = string(src.Covers)
	}

	set := &store.Beatmapset{
		ID:             src.ID,
		Artist:         src.Artist,
		ArtistUnicode:  src.ArtistUnicode,
		Creator:        src.Creator,
		FavouriteCount: src.FavouriteCount,
		PlayCount:      src.PlayCount,
		Status:         src.Status,
		Title:          src.Title,
		TitleUnicode:   src.TitleUnicode,
		Source:         src.Source,
		UserID:         src.UserID,
		NSFW:           src.NSFW,
		Video:          src.Video,
		Storyboard:     src.Storyboard,
		BPM:            src.BPM,
		Rating:         src.Rating,
		Tags:           &tags,
		Covers:         covers,
		RankedDate:     src.RankedDate,
		SubmittedDate:  src.SubmittedDate,
		LastUpdated:    src.LastUpdated,
	}

	maps := make([]store.Beatmap, 0, len(src.Beatmaps))
	for _, b := range src.Beatmaps {
		bpm := 0.0
		if b.BPM != nil {
			bpm = *b.BPM
		} else if src.BPM != nil {
			bpm = *src.BPM
		}
		maps = append(maps, store.Beatmap{
			ID:               b.ID,
			BeatmapsetID:     src.ID,
			Version:          b.Version,
			DifficultyRating: b.DifficultyRating,
			Mode:             b.Mode,
			ModeInt:          b.ModeInt,
			Status:           b.Status,
			TotalLength:      b.TotalLength,
			HitLength:        b.HitLength,
			UserID:           b.UserID,
			Accuracy:         b.Accuracy,
			AR:               b.AR,
			CS:               b.CS,
			BPM:              bpm,
			Drain:            b.Drain,
			Passcount:        b.Passcount,
			Playcount:        b.Playcount,
			MaxCombo:         b.MaxCombo,
			CountCircles:     b.CountCircles,
			CountSliders:     b.CountSliders,
			CountSpinners:    b.CountSpinners,
			Checksum:         b.Checksum,
			URL:              b.URL,
			LastUpdated:      b.LastUpdated,
		})
	}
	return set, maps
}

// JoinTags renders the API tags field into the stored tag string: lowercase,
// space-separated. The API sends tags either as a list of words or as one
// string; a string is split into its characters, which is the format the
// existing tag index (and the search tag filter) is built on.
func JoinTags(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.ToLower(strings.Join(list, " "))
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return store.SpaceRunes(strings.ToLower(s))
	}
	return ""
}
