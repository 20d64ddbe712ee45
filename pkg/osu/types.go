package osu

import (
	"encoding/json"
	"strings"
	"time"
)

// Beatmapset is a beatmapset as returned by /beatmapsets/search.
type Beatmapset struct {
	ID             int64           `json:"id"`
	Artist         string          `json:"artist"`
	ArtistUnicode  *string         `json:"artist_unicode"`
	Creator        string          `json:"creator"`
	FavouriteCount int             `json:"favourite_count"`
	PlayCount      int             `json:"play_count"`
	Status         string          `json:"status"`
	Title          string          `json:"title"`
	TitleUnicode   *string         `json:"title_unicode"`
	Source         *string         `json:"source"`
	UserID         *int64          `json:"user_id"`
	NSFW           bool            `json:"nsfw"`
	Video          bool            `json:"video"`
	Storyboard     bool            `json:"storyboard"`
	BPM            *float64        `json:"bpm"`
	Rating         *float64        `json:"rating"`
	Tags           json.RawMessage `json:"tags"`
	Covers         json.RawMessage `json:"covers"`
	RankedDate     *time.Time      `json:"ranked_date"`
	SubmittedDate  *time.Time      `json:"submitted_date"`
	LastUpdated    *time.Time      `json:"last_updated"`
	Beatmaps       []Beatmap       `json:"beatmaps"`
}

// Beatmap is one difficulty embedded in a Beatmapset.
type Beatmap struct {
	ID               int64      `json:"id"`
	BeatmapsetID     int64      `json:"beatmapset_id"`
	DifficultyRating float64    `json:"difficulty_rating"`
	Mode             string     `json:"mode"`
	ModeInt          *int       `json:"mode_int"`
	Status           string     `json:"status"`
	TotalLength      int        `json:"total_length"`
	HitLength        *int       `json:"hit_length"`
	UserID           *int64     `json:"user_id"`
	Version          string     `json:"version"`
	Accuracy         *float64   `json:"accuracy"`
	AR               float64    `json:"ar"`
	BPM              *float64   `json:"bpm"`
	CS               float64    `json:"cs"`
	Drain            *float64   `json:"drain"`
	Passcount        *int       `json:"passcount"`
	Playcount        *int       `json:"playcount"`
	MaxCombo         *int       `json:"max_combo"`
	CountCircles     *int       `json:"count_circles"`
	CountSliders     *int       `json:"count_sliders"`
	CountSpinners    *int       `json:"count_spinners"`
	Checksum         *string    `json:"checksum"`
	URL              *string    `json:"url"`
	LastUpdated      *time.Time `json:"last_updated"`
}

// SearchResponse is one page of /beatmapsets/search.
type SearchResponse struct {
	Beatmapsets  []Beatmapset               `json:"beatmapsets"`
	Cursor       map[string]json.RawMessage `json:"cursor"`
	CursorString string                     `json:"cursor_string"`
	Total        int                        `json:"total"`
}

// Cursor continues a search where a previous page stopped. The API returns
// both an opaque cursor_string and the structured cursor fields; String wins
// when present.
type Cursor struct {
	String string
	Fields map[string]string
}

// Next returns the cursor for the following page, or nil on the last page.
func (r *SearchResponse) Next() *Cursor {
	if r.CursorString != "" {
		return &Cursor{String: r.CursorString}
	}
	if len(r.Cursor) == 0 {
		return nil
	}
	fields := make(map[string]string, len(r.Cursor))
	for k, raw := range r.Cursor {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			fields[k] = s
			continue
		}
		fields[k] = strings.TrimSpace(string(raw))
	}
	return &Cursor{Fields: fields}
}
