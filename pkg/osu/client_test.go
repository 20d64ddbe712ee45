package osu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestAPI(t *testing.T, tokenCalls *int32, lastQuery *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode token body: %v", err)
		}
		if body["grant_type"] != "client_credentials" || body["client_id"] != "id" {
			t.Errorf("unexpected token body: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 86400})
	})
	mux.HandleFunc("/api/v2/beatmapsets/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header: got %q", got)
		}
		lastQuery.Store(r.URL.RawQuery)
		w.Write([]byte(`{
			"beatmapsets": [{
				"id": 1, "artist": "a", "creator": "c", "title": "t", "status": "ranked",
				"tags": "anime game", "ranked_date": "2024-01-10T12:00:00+00:00",
				"beatmaps": [{"id": 10, "beatmapset_id": 1, "difficulty_rating": 5.25, "mode": "osu",
					"status": "ranked", "total_length": 90, "version": "Insane", "ar": 9, "cs": 4,
					"bpm": 180, "accuracy": null}]
			}],
			"cursor": {"approved_date": 1704888000000, "id": "1"},
			"cursor_string": "abc"
		}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchBeatmapsets(t *testing.T) {
	var tokenCalls int32
	var query atomic.Value
	srv := newTestAPI(t, &tokenCalls, &query)

	c := NewClient(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      srv.URL + "/api/v2/",
		TokenURL:     srv.URL + "/oauth/token",
	})
	ctx := context.Background()

	resp, err := c.SearchBeatmapsets(ctx, "taiko", nil)
	if err != nil {
		t.Fatalf("SearchBeatmapsets: %v", err)
	}
	if got := query.Load(); got != "m=1&sort=ranked_desc" {
		t.Fatalf("query: got %q", got)
	}
	if len(resp.Beatmapsets) != 1 || len(resp.Beatmapsets[0].Beatmaps) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	bm := resp.Beatmapsets[0].Beatmaps[0]
	if bm.DifficultyRating != 5.25 || bm.Accuracy != nil {
		t.Fatalf("beatmap decode: %+v", bm)
	}
	if rd := resp.Beatmapsets[0].RankedDate; rd == nil || rd.Hour() != 12 {
		t.Fatalf("ranked_date decode: %v", rd)
	}

	next := resp.Next()
	if next == nil || next.String != "abc" {
		t.Fatalf("next cursor: %+v", next)
	}
	if _, err := c.SearchBeatmapsets(ctx, "", next); err != nil {
		t.Fatalf("SearchBeatmapsets with cursor: %v", err)
	}
	if got := query.Load(); got != "cursor_string=abc&sort=ranked_desc" {
		t.Fatalf("cursor query: got %q", got)
	}
	if n := atomic.LoadInt32(&tokenCalls); n != 1 {
		t.Fatalf("token should be cached, fetched %d times", n)
	}
}

func TestNextStructuredCursor(t *testing.T) {
	resp := &SearchResponse{Cursor: map[string]json.RawMessage{
		"approved_date": json.RawMessage(`1704888000000`),
		"id":            json.RawMessage(`"42"`),
	}}
	next := resp.Next()
	if next == nil || next.String != "" {
		t.Fatalf("next: %+v", next)
	}
	if next.Fields["approved_date"] != "1704888000000" || next.Fields["id"] != "42" {
		t.Fatalf("fields: %+v", next.Fields)
	}

	if (&SearchResponse{}).Next() != nil {
		t.Fatal("empty cursor should end the listing")
	}
}

func TestTokenError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, TokenURL: srv.URL + "/oauth/token"})
	if _, err := c.SearchBeatmapsets(context.Background(), "osu", nil); err == nil {
		t.Fatal("expected auth error")
	}
}
