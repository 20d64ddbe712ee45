package search

import (
	"net/url"
	"strconv"
	"strings"
)

// Params is the flat bag of query parameters a search is built from.
type Params map[string]string

// ParamsFromQuery flattens URL query values. When a key repeats, the last
// value wins.
func ParamsFromQuery(q url.Values) Params {
	p := make(Params, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			p[k] = vs[len(vs)-1]
		}
	}
	return p
}

// Get returns the trimmed value of key, or "" when absent.
func (p Params) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// parseLimit resolves the page size: missing, malformed or non-positive
// values fall back to def, values above limit are clamped to limit.
func parseLimit(raw string, def, limit int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return def
	}
	if n > limit {
		return limit
	}
	return n
}
