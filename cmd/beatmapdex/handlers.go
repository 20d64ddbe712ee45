package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/beatmapdex/internal/config"
	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/internal/scheduler"
	"github.com/elonfeng/beatmapdex/internal/store"
	"github.com/elonfeng/beatmapdex/internal/telemetry"
	"github.com/elonfeng/beatmapdex/pkg/importer"
	"github.com/elonfeng/beatmapdex/pkg/osu"
	"github.com/elonfeng/beatmapdex/pkg/search"
	"github.com/elonfeng/beatmapdex/pkg/server"
)

// app holds what every command opens: config, logger, tracing and the store.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *store.SQLStore

	shutdownTelemetry func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}

	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		_ = shutdown(ctx)
		log.Sync()
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db, shutdownTelemetry: shutdown}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTelemetry(ctx); err != nil {
		a.log.Warn("flush traces", "error", err)
	}
	a.log.Sync()
}

func (a *app) engine() *search.Engine {
	return search.NewEngine(a.db, a.log.With("component", "search"), a.cfg.Search.DefaultLimit, a.cfg.Search.MaxLimit)
}

// importer returns nil when no osu! API credentials are configured.
func (a *app) importer(maxRequests int) *importer.Importer {
	if a.cfg.Osu.ClientID == "" || a.cfg.Osu.ClientSecret == "" {
		return nil
	}
	if maxRequests <= 0 {
		maxRequests = a.cfg.Osu.MaxRequests
	}
	client := osu.NewClient(osu.Config{
		ClientID:          a.cfg.Osu.ClientID,
		ClientSecret:      a.cfg.Osu.ClientSecret,
		BaseURL:           a.cfg.Osu.BaseURL,
		TokenURL:          a.cfg.Osu.TokenURL,
		RequestsPerMinute: a.cfg.Osu.RequestsPerMinute,
	})
	return importer.New(client, a.db, a.log.With("component", "importer"), a.cfg.Osu.Mode, maxRequests)
}

func (a *app) server(port int, im *importer.Importer) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	var runner server.Importer
	if im != nil {
		runner = im
	}
	return server.New(a.db, a.engine(), runner, a.log.With("component", "http"), port)
}

var errNoCredentials = errors.New("osu! API credentials missing (set OSU_CLIENT_ID and OSU_CLIENT_SECRET)")

func runImport(ctx context.Context, maxRequests int) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	im := a.importer(maxRequests)
	if im == nil {
		return errNoCredentials
	}

	stats, err := im.Run(ctx)
	fmt.Fprintf(os.Stderr, "imported %d beatmapsets (%d beatmaps) in %d requests, %d failed\n",
		stats.Beatmapsets, stats.Beatmaps, stats.Requests, stats.Failed)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

func runSearch(ctx context.Context, params map[string]string, jsonOutput bool) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.engine().Search(ctx, search.Params(params))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	if page.Count == 0 {
		fmt.Println("no beatmaps found (try importing first: beatmapdex import)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SET\tBEATMAP\tSTARS\tMODE\tARTIST - TITLE [VERSION]\tMAPPER\tRANKED")
	for _, r := range page.Results {
		fmt.Fprintf(w, "%d\t%d\t%.2f\t%s\t%s - %s [%s]\t%s\t%s\n",
			r.BeatmapsetID, r.ID, r.DifficultyRating, r.Mode,
			r.Artist, r.Title, r.Version, r.Creator,
			strings.SplitN(r.RankedDate, "T", 2)[0])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if page.Cursor != nil {
		fmt.Printf("\nnext page: --cursor %q\n", *page.Cursor)
	}
	return nil
}

func runServe(ctx context.Context, port int) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := a.server(port, a.importer(0))
	return serveUntilDone(ctx, a.log, srv)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	im := a.importer(0)
	if im == nil {
		return errNoCredentials
	}

	g, ctx := errgroup.WithContext(ctx)

	sched := scheduler.New(im, a.log.With("component", "scheduler"), a.cfg.Schedule.ParseImportInterval())
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	srv := a.server(port, im)
	g.Go(func() error {
		return serveUntilDone(ctx, a.log, srv)
	})

	return g.Wait()
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down gracefully.
func serveUntilDone(ctx context.Context, log *logger.Logger, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return <-errCh
}
