package store

import "strings"

// SpaceRunes interleaves the characters of s with single spaces:
// "anime" -> "a n i m e". Stored tag strings of beatmapsets imported from a
// tag string are in this form, so tag lookups must use it too.
func SpaceRunes(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i, r := range runes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
