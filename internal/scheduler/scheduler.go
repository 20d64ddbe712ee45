package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/pkg/importer"
)

// Importer runs one import pass.
type Importer interface {
	Run(ctx context.Context) (importer.Stats, error)
}

// Scheduler runs periodic beatmap imports.
type Scheduler struct {
	importer  Importer
	log       *logger.Logger
	importInt time.Duration
}

// New creates a new scheduler.
func New(im Importer, log *logger.Logger, importInt time.Duration) *Scheduler {
	if importInt == 0 {
		importInt = 6 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		importer:  im,
		log:       log,
		importInt: importInt,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.importInt)
	defer ticker.Stop()

	// Run immediately on start.
	s.log.Info("scheduler: initial import")
	s.importOnce(ctx)

	s.log.Info("scheduler: running", "import_interval", s.importInt.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.log.Info("scheduler: importing")
			s.importOnce(ctx)
		}
	}
}

func (s *Scheduler) importOnce(ctx context.Context) {
	stats, err := s.importer.Run(ctx)
	if errors.Is(err, importer.ErrRunning) {
		s.log.Info("scheduler: import already running, skipping")
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("scheduled import failed", "run_id", stats.RunID, "error", err)
		return
	}
	s.log.Info("scheduled import done",
		"run_id", stats.RunID,
		"beatmapsets", stats.Beatmapsets,
		"beatmaps", stats.Beatmaps,
		"failed", stats.Failed,
	)
}
