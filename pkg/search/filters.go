package search

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/internal/metrics"
	"github.com/elonfeng/beatmapdex/internal/store"
)

// filter binds one query parameter to a store condition. parse turns the raw
// value into zero or more condition values; each value becomes its own
// AND-ed condition on column.
type filter struct {
	param  string
	column store.Column
	op     store.Op
	parse  func(string) ([]any, error)
}

var filters = []filter{
	{"status", store.ColSetStatus, store.OpIn, parseList},
	{"creator", store.ColSetCreator, store.OpContains, parseTerms},
	{"artist", store.ColSetArtist, store.OpContains, parseTerms},
	{"title", store.ColSetTitle, store.OpContains, parseTerms},
	{"created_after", store.ColSetRankedDate, store.OpGte, parseDay(0)},
	{"created_before", store.ColSetRankedDate, store.OpLte, parseDay(1)},
	{"favouritesMin", store.ColSetFavouriteCount, store.OpGte, parseNumber},
	{"favouritesMax", store.ColSetFavouriteCount, store.OpLte, parseNumber},
	{"playCountMin", store.ColSetPlayCount, store.OpGte, parseNumber},
	{"playCountMax", store.ColSetPlayCount, store.OpLte, parseNumber},
	{"arMin", store.ColAR, store.OpGte, parseNumber},
	{"arMax", store.ColAR, store.OpLte, parseNumber},
	{"csMin", store.ColCS, store.OpGte, parseNumber},
	{"csMax", store.ColCS, store.OpLte, parseNumber},
	{"starsMin", store.ColDifficultyRating, store.OpGte, parseNumber},
	{"starsMax", store.ColDifficultyRating, store.OpLte, parseNumber},
	{"lengthMin", store.ColTotalLength, store.OpGte, parseNumber},
	{"lengthMax", store.ColTotalLength, store.OpLte, parseNumber},
	{"bpmMin", store.ColBPM, store.OpGte, parseNumber},
	{"bpmMax", store.ColBPM, store.OpLte, parseNumber},
	{"mode", store.ColMode, store.OpIn, parseModes},
	{"tags", store.ColSetTags, store.OpContains, parseTags},
}

// conditions applies the filter table to p. Parameters that fail to parse
// are logged and skipped; the rest of the search still runs.
func conditions(p Params, log *logger.Logger) []store.Condition {
	var conds []store.Condition
	for _, f := range filters {
		raw := p.Get(f.param)
		if raw == "" {
			continue
		}
		vals, err := f.parse(raw)
		if err != nil {
			log.Warn("ignoring invalid search parameter", "param", f.param, "value", raw, "error", err)
			metrics.SearchParamsRejected.WithLabelValues(f.param).Inc()
			continue
		}
		for _, v := range vals {
			conds = append(conds, store.Condition{Column: f.column, Op: f.op, Value: v})
		}
	}
	return conds
}

// splitComma splits a comma list, trimming entries and dropping empty ones.
func splitComma(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseList(raw string) ([]any, error) {
	list := splitComma(raw)
	if len(list) == 0 {
		return nil, nil
	}
	return []any{list}, nil
}

func parseTerms(raw string) ([]any, error) {
	var out []any
	for _, term := range strings.Fields(raw) {
		out = append(out, term)
	}
	return out, nil
}

// parseDay parses YYYY-MM-DD as UTC midnight, shifted by offset days.
func parseDay(offset int) func(string) ([]any, error) {
	return func(raw string) ([]any, error) {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("expected YYYY-MM-DD: %w", err)
		}
		return []any{d.UTC().AddDate(0, 0, offset)}, nil
	}
}

func parseNumber(raw string) ([]any, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("not a finite number")
	}
	return []any{v}, nil
}

// modes maps accepted mode tokens to stored mode names.
var modes = map[string]string{
	"osu":    "osu",
	"taiko":  "taiko",
	"fruits": "fruits",
	"mania":  "mania",
	"0":      "osu",
	"1":      "taiko",
	"2":      "fruits",
	"3":      "mania",
}

// parseModes keeps the valid mode tokens. Unknown tokens are dropped without
// a warning; if none remain the filter is not applied.
func parseModes(raw string) ([]any, error) {
	seen := make(map[string]bool)
	var list []string
	for _, tok := range splitComma(raw) {
		name, ok := modes[strings.ToLower(tok)]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		list = append(list, name)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return []any{list}, nil
}

// parseTags lowercases each tag and spaces out its characters, matching how
// tag strings are stored.
func parseTags(raw string) ([]any, error) {
	var out []any
	for _, tag := range splitComma(raw) {
		out = append(out, store.SpaceRunes(strings.ToLower(tag)))
	}
	return out, nil
}
