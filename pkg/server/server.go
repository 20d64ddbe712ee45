package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/internal/store"
	"github.com/elonfeng/beatmapdex/pkg/importer"
	"github.com/elonfeng/beatmapdex/pkg/search"
)

const serverErrorMessage = "Server error while processing your request"

// Searcher answers beatmap searches.
type Searcher interface {
	Search(ctx context.Context, p search.Params) (*search.Page, error)
}

// Store is the part of the store the API uses directly.
type Store interface {
	Ping(ctx context.Context) error
	CountBeatmapsetsByStatus(ctx context.Context) (map[string]int, error)
	GetBeatmapset(ctx context.Context, id int64) (*store.Beatmapset, error)
	ListBeatmaps(ctx context.Context, setID int64) ([]store.Beatmap, error)
	DeleteBeatmapset(ctx context.Context, id int64) error
}

// Importer runs one import on demand.
type Importer interface {
	Run(ctx context.Context) (importer.Stats, error)
}

// Server provides the HTTP API.
type Server struct {
	store    Store
	searcher Searcher
	importer Importer
	log      *logger.Logger
	port     int

	httpSrv *http.Server
}

// New creates a new HTTP server. importer may be nil, which disables the
// import endpoint.
func New(s Store, searcher Searcher, im Importer, log *logger.Logger, port int) *Server {
	if port == 0 {
		port = 8080
	}
	if log == nil {
		log = logger.Nop()
	}
	srv := &Server{
		store:    s,
		searcher: searcher,
		importer: im,
		log:      log,
		port:     port,
	}
	srv.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/beatmaps/search/", s.handleSearch)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/beatmapsets/", s.handleBeatmapset)
	mux.HandleFunc("/api/v1/import", s.handleImport)
	return s.withRequestID(s.withRecover(mux))
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("beatmapdex server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type ctxKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// withRecover turns a handler panic into the generic 500 envelope.
func (s *Server) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.requestLog(r).Error("panic serving request", "panic", rec, "stack", string(debug.Stack()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": serverErrorMessage})
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(r *http.Request) *logger.Logger {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return s.log.With("request_id", id, "path", r.URL.Path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.requestLog(r).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	page, err := s.searcher.Search(r.Context(), search.ParamsFromQuery(r.URL.Query()))
	if err != nil {
		s.requestLog(r).Error("beatmap search failed", "query", r.URL.RawQuery, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": serverErrorMessage})
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	counts, err := s.store.CountBeatmapsetsByStatus(r.Context())
	if err != nil {
		s.requestLog(r).Error("count beatmapsets failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": serverErrorMessage})
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  counts,
		"count": total,
	})
}

// handleBeatmapset serves /api/v1/beatmapsets/{id}: GET returns the set with
// its beatmaps, DELETE removes it.
func (s *Server) handleBeatmapset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/v1/beatmapsets/"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid beatmapset id"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		set, err := s.store.GetBeatmapset(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "beatmapset not found"})
			return
		}
		if err != nil {
			s.requestLog(r).Error("get beatmapset failed", "beatmapset_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": serverErrorMessage})
			return
		}
		maps, err := s.store.ListBeatmaps(r.Context(), id)
		if err != nil {
			s.requestLog(r).Error("list beatmaps failed", "beatmapset_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": serverErrorMessage})
			return
		}
		if maps == nil {
			maps = []store.Beatmap{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":     set,
			"beatmaps": maps,
		})
	case http.MethodDelete:
		err := s.store.DeleteBeatmapset(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "beatmapset not found"})
			return
		}
		if err != nil {
			s.requestLog(r).Error("delete beatmapset failed", "beatmapset_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": serverErrorMessage})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.importer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "import is not configured"})
		return
	}

	stats, err := s.importer.Run(r.Context())
	if errors.Is(err, importer.ErrRunning) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	resp := map[string]any{"imported": stats}
	if err != nil {
		s.requestLog(r).Error("import failed", "run_id", stats.RunID, "error", err)
		resp["error"] = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
