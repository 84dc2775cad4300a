// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package scheduler

import (
	"context"
	"time"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
)

// BaselinePruner removes baselines of entities that no longer exist.
type BaselinePruner interface {
	Worlds(ctx context.Context, scope string) ([]string, error)
	DeleteMissing(ctx context.Context, world, scope string, keep map[int64]struct{}) (int, error)
}

// PlayerIndex lists the players present in a world's snapshot.
type PlayerIndex interface {
	PlayerIDs(ctx context.Context, world string) (map[int64]struct{}, error)
}

// JournalPurger deletes closed journal entries.
type JournalPurger interface {
	PurgeClosedEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// Collector reclaims dedup ledger storage.
type Collector interface {
	GC() error
}

// MaintenanceConfig tunes Maintenance.
type MaintenanceConfig struct {
	Interval         time.Duration
	JournalRetention time.Duration
}

// MaintenanceReport summarizes one maintenance run.
type MaintenanceReport struct {
	BaselinesPruned int
	EventsPurged    int64
}

// Maintenance prunes kill-score baselines of vanished players, purges old
// closed journal entries and collects ledger garbage.
type Maintenance struct {
	baselines BaselinePruner
	players   PlayerIndex
	journal   JournalPurger
	ledger    Collector
	cfg       MaintenanceConfig
	now       func() time.Time
}

// NewMaintenance creates the maintenance service.
func NewMaintenance(baselines BaselinePruner, players PlayerIndex, journal JournalPurger, ledger Collector, cfg MaintenanceConfig) *Maintenance {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.JournalRetention <= 0 {
		cfg.JournalRetention = 30 * 24 * time.Hour
	}
	return &Maintenance{
		baselines: baselines,
		players:   players,
		journal:   journal,
		ledger:    ledger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// String names the service for the supervisor.
func (m *Maintenance) String() string {
	return "maintenance"
}

// Serve runs maintenance at startup and then on every interval.
func (m *Maintenance) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs one maintenance pass. Failures are logged and the
// remaining steps still run.
func (m *Maintenance) RunOnce(ctx context.Context) MaintenanceReport {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	logger := logging.Ctx(ctx)
	var report MaintenanceReport

	for _, killType := range models.AllKillTypes() {
		scope := string(killType)
		worlds, err := m.baselines.Worlds(ctx, scope)
		if err != nil {
			logger.Warn().Err(err).Str("scope", scope).Msg("Failed to list baseline worlds")
			continue
		}
		for _, world := range worlds {
			keep, err := m.players.PlayerIDs(ctx, world)
			if err != nil {
				logger.Warn().Err(err).Str("world", world).Msg("Failed to list players")
				continue
			}
			// An empty snapshot means ingestion has not run yet, not that everyone left.
			if len(keep) == 0 {
				continue
			}
			n, err := m.baselines.DeleteMissing(ctx, world, scope, keep)
			if err != nil {
				logger.Warn().Err(err).Str("world", world).Str("scope", scope).Msg("Failed to prune baselines")
				continue
			}
			report.BaselinesPruned += n
		}
	}

	cutoff := m.now().Add(-m.cfg.JournalRetention)
	purged, err := m.journal.PurgeClosedEvents(ctx, cutoff)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to purge closed events")
	}
	report.EventsPurged = purged

	if m.ledger != nil {
		if err := m.ledger.GC(); err != nil {
			logger.Warn().Err(err).Msg("Dedup ledger garbage collection failed")
		}
	}

	logger.Info().
		Int("baselines_pruned", report.BaselinesPruned).
		Int64("events_purged", report.EventsPurged).
		Msg("Maintenance completed")
	return report
}
