package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/elonfeng/beatmapdex/internal/logger"
	"github.com/elonfeng/beatmapdex/pkg/importer"
)

type countingImporter struct {
	runs atomic.Int32
	err  error
}

func (c *countingImporter) Run(context.Context) (importer.Stats, error) {
	c.runs.Add(1)
	return importer.Stats{RunID: "r"}, c.err
}

func TestRunImportsImmediatelyAndOnTick(t *testing.T) {
	im := &countingImporter{}
	s := New(im, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for im.runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if n := im.runs.Load(); n < 3 {
		t.Fatalf("expected at least 3 imports, got %d", n)
	}
}

func TestRunLogsFailedImport(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	im := &countingImporter{err: errors.New("osu search status 500")}
	s := New(im, logger.FromZap(zap.New(core)), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("scheduled import failed").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if logs.FilterMessage("scheduled import failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %v", logs.All())
	}
}

func TestRunSkipsWhileImportRunning(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	im := &countingImporter{err: importer.ErrRunning}
	s := New(im, logger.FromZap(zap.New(core)), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("scheduler: import already running, skipping").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if logs.FilterMessage("scheduler: import already running, skipping").Len() != 1 {
		t.Fatalf("expected one skip log, got %v", logs.All())
	}
	if logs.FilterMessage("scheduled import failed").Len() != 0 {
		t.Fatal("an overlapping run is not a failure")
	}
}
