package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/beatmapdex/internal/store"
)

const (
	isoLayout      = "2006-01-02T15:04:05-07:00"
	isoMicroLayout = "2006-01-02T15:04:05.000000-07:00"
)

// FormatTime renders t in UTC as 2024-01-10T00:00:00+00:00, adding
// microseconds only when they are non-zero.
func FormatTime(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format(isoMicroLayout)
	}
	return t.Format(isoLayout)
}

// EncodeCursor renders the key of the last set on a page as "<date>|<id>".
func EncodeCursor(key store.SetKey) string {
	return FormatTime(key.RankedDate.Time) + "|" + strconv.FormatInt(key.SetID, 10)
}

var cursorLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// DecodeCursor parses a cursor made by EncodeCursor. Dates without an offset
// are taken as UTC.
func DecodeCursor(raw string) (*store.SetKey, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("cursor %q: want <date>|<id>", raw)
	}

	ranked, err := parseCursorTime(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("cursor id %q: %w", parts[1], err)
	}
	return &store.SetKey{SetID: id, RankedDate: store.Timestamp{Time: ranked}}, nil
}

func parseCursorTime(s string) (time.Time, error) {
	// Form decoding turns the "+" of an offset into a space.
	if i := strings.LastIndexByte(s, ' '); i > 10 {
		s = s[:i] + "+" + s[i+1:]
	}
	for _, layout := range cursorLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cursor date %q is not ISO-8601", s)
}
