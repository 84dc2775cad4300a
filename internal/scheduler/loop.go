// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package scheduler runs the tracker loops.
//
// Every tracker kind gets a TrackerLoop, a suture service that ticks on the
// kind's interval, reconciles each subscribed world with bounded concurrency
// and then dispatches the world's pending events. The Controller adds a loop
// to the supervisor while at least one subscription of its kind exists and
// removes it when the last one goes away. Maintenance prunes stale state
// once a day.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/metrics"
	"github.com/tomtom215/tribewatch/internal/models"
	"github.com/tomtom215/tribewatch/internal/notify"
	"github.com/tomtom215/tribewatch/internal/reconcile"
)

// Reconciler detects and journals the events of one world.
type Reconciler interface {
	Kind() models.Kind
	Reconcile(ctx context.Context, world string) (*reconcile.Outcome, error)
}

// Dispatcher delivers the pending events of one world.
type Dispatcher interface {
	Dispatch(ctx context.Context, world string, kind models.Kind) (*notify.Stats, error)
}

// WorldLister lists the worlds with at least one subscription of a kind.
type WorldLister interface {
	Worlds(ctx context.Context, kind models.Kind) ([]string, error)
}

// Observer is told about loop state changes and finished cycles.
type Observer interface {
	OnLoopState(kind models.Kind, running bool)
	OnCycle(report models.CycleReport)
}

// LoopConfig tunes a TrackerLoop.
type LoopConfig struct {
	Interval         time.Duration
	WorldConcurrency int
}

// TrackerLoop is the periodic reconcile-then-dispatch loop of one kind.
type TrackerLoop struct {
	kind       models.Kind
	reconciler Reconciler
	dispatcher Dispatcher
	worlds     WorldLister
	cfg        LoopConfig
	observers  []Observer

	mu   sync.Mutex
	last models.CycleReport
}

// NewTrackerLoop creates the loop for the reconciler's kind.
func NewTrackerLoop(r Reconciler, d Dispatcher, worlds WorldLister, cfg LoopConfig, observers ...Observer) *TrackerLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.WorldConcurrency <= 0 {
		cfg.WorldConcurrency = 4
	}
	return &TrackerLoop{
		kind:       r.Kind(),
		reconciler: r,
		dispatcher: d,
		worlds:     worlds,
		cfg:        cfg,
		observers:  observers,
	}
}

// Kind returns the tracker kind.
func (l *TrackerLoop) Kind() models.Kind {
	return l.kind
}

// String names the loop for the supervisor.
func (l *TrackerLoop) String() string {
	return "tracker-" + string(l.kind)
}

// LastCycle returns the report of the most recent cycle.
func (l *TrackerLoop) LastCycle() models.CycleReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Serve runs a cycle immediately and then on every tick until ctx is
// canceled. Cycles never overlap; ticks missed by a long cycle are dropped.
func (l *TrackerLoop) Serve(ctx context.Context) error {
	metrics.SetLoopRunning(string(l.kind), true)
	defer metrics.SetLoopRunning(string(l.kind), false)

	logging.Info().Str("kind", string(l.kind)).Dur("interval", l.cfg.Interval).Msg("Tracker loop started")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		l.RunCycle(ctx)

		select {
		case <-ctx.Done():
			logging.Info().Str("kind", string(l.kind)).Msg("Tracker loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycleTotals is shared by the world workers of one cycle.
type cycleTotals struct {
	mu        sync.Mutex
	failed    int
	journaled int
	delivered int
	abandoned int
}

// RunCycle reconciles and dispatches every subscribed world once.
func (l *TrackerLoop) RunCycle(ctx context.Context) models.CycleReport {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.Ctx(ctx).With().Str("kind", string(l.kind)).Logger()
	start := time.Now()

	report := models.CycleReport{Kind: l.kind}
	worlds, err := l.worlds.Worlds(ctx, l.kind)
	if err != nil {
		metrics.RecordWorldError(string(l.kind), "list")
		logger.Error().Err(err).Msg("Failed to list subscribed worlds")
		return report
	}

	totals := &cycleTotals{}
	var g errgroup.Group
	g.SetLimit(l.cfg.WorldConcurrency)
	for _, world := range worlds {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			l.runWorld(ctx, world, totals)
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	metrics.RecordCycle(string(l.kind), duration)

	report.Worlds = len(worlds)
	report.Failed = totals.failed
	report.Journaled = totals.journaled
	report.Delivered = totals.delivered
	report.Abandoned = totals.abandoned
	report.DurationMS = duration.Milliseconds()
	report.FinishedAt = time.Now().UTC()

	l.mu.Lock()
	l.last = report
	l.mu.Unlock()

	logger.Debug().
		Int("worlds", report.Worlds).
		Int("failed", report.Failed).
		Int("journaled", report.Journaled).
		Int("delivered", report.Delivered).
		Dur("duration", duration).
		Msg("Tracker cycle completed")

	for _, o := range l.observers {
		o.OnCycle(report)
	}
	return report
}

// runWorld reconciles one world and dispatches its pending events. Pending
// events of earlier cycles are dispatched even when reconciliation fails.
func (l *TrackerLoop) runWorld(ctx context.Context, world string, totals *cycleTotals) {
	logger := logging.Ctx(ctx).With().Str("kind", string(l.kind)).Str("world", world).Logger()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorldError(string(l.kind), "panic")
			logger.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in world cycle")
			totals.mu.Lock()
			totals.failed++
			totals.mu.Unlock()
		}
	}()

	failed := false
	journaled := 0
	outcome, err := l.reconciler.Reconcile(ctx, world)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		failed = true
		metrics.RecordWorldError(string(l.kind), "reconcile")
		logger.Warn().Err(err).Msg("World reconciliation failed")
	} else {
		journaled = outcome.Journaled
	}

	var stats *notify.Stats
	if l.dispatcher != nil {
		stats, err = l.dispatcher.Dispatch(ctx, world, l.kind)
		if err != nil && ctx.Err() == nil {
			failed = true
			metrics.RecordWorldError(string(l.kind), "dispatch")
			logger.Warn().Err(err).Msg("World dispatch failed")
		}
	}

	totals.mu.Lock()
	defer totals.mu.Unlock()
	if failed {
		totals.failed++
	}
	totals.journaled += journaled
	if stats != nil {
		totals.delivered += stats.Delivered
		totals.abandoned += stats.Abandoned
	}
}
