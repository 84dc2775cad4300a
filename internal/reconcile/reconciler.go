// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package reconcile turns world snapshots and remote feeds into events.
//
// A Reconciler is created per tracker kind. For one world it reads the
// current observations, compares them with the stored baseline through a
// Policy, and produces the events plus the baseline (and cursor) writes
// that Commit persists in one transaction:
//
//	r, _ := reconcile.New(models.KindWall, deps, opts)
//	outcome, err := r.Reconcile(ctx, "nl90")
//
// All state lives in the Reconciler value and the database.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/feed"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/metrics"
	"github.com/tomtom215/tribewatch/internal/models"
)

// SnapshotReader reads the world snapshot.
type SnapshotReader interface {
	ListEntities(ctx context.Context, world string) ([]models.Village, error)
	Village(ctx context.Context, world string, id int64) (*models.Village, error)
	PlayerTribes(ctx context.Context, world string, ids []int64) (map[int64]int64, error)
	TribeMembership(ctx context.Context, world string) (map[int64]int64, error)
}

// BaselineReader reads stored baselines.
type BaselineReader interface {
	GetAll(ctx context.Context, world, scope string) (map[int64]models.BaselineState, error)
}

// Journal persists cycle results and feed cursors.
type Journal interface {
	Cursor(ctx context.Context, world string, kind models.Kind) (int64, bool, error)
	SetCursor(ctx context.Context, world string, kind models.Kind, since int64) error
	Commit(ctx context.Context, res *database.CycleResult) (int, error)
}

// FeedSource fetches remote feeds.
type FeedSource interface {
	FetchDeltasSince(ctx context.Context, world string, since int64) ([]models.FeedEntry, error)
	FetchKillScores(ctx context.Context, world string, killType models.KillType) ([]models.KillScore, error)
}

// Deps are the collaborators of a Reconciler.
type Deps struct {
	Snapshots SnapshotReader
	Baselines BaselineReader
	Journal   Journal
	Feed      FeedSource
}

// Options tune a Reconciler.
type Options struct {
	// Cooldown is the minimum gap between two accepted kill-score increases.
	Cooldown time.Duration

	// FallbackLookback is the initial feed cursor distance from now.
	FallbackLookback time.Duration

	// MaxLookback is how far back the remote feed still serves data.
	MaxLookback time.Duration

	// Now overrides the clock.
	Now func() time.Time
}

// Outcome summarizes one reconciliation of one world.
type Outcome struct {
	World          string
	Kind           models.Kind
	Detected       int
	Journaled      int
	BaselineWrites int
	Seeded         bool
	NoData         bool
	Cursor         *int64
}

// Reconciler runs one tracker kind's policy against any number of worlds.
type Reconciler struct {
	kind   models.Kind
	policy Policy
	deps   Deps
	opts   Options
}

// New creates the reconciler for a kind.
func New(kind models.Kind, deps Deps, opts Options) (*Reconciler, error) {
	if deps.Journal == nil || deps.Snapshots == nil {
		return nil, fmt.Errorf("reconciler %s: snapshot reader and journal are required", kind)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FallbackLookback <= 0 {
		opts.FallbackLookback = time.Hour
	}
	if opts.MaxLookback <= 0 {
		opts.MaxLookback = 84600 * time.Second
	}

	r := &Reconciler{kind: kind, deps: deps, opts: opts}
	switch kind {
	case models.KindConquer:
		r.policy = OwnershipPolicy{}
	case models.KindAcademy:
		r.policy = AcademyPolicy()
	case models.KindWall:
		r.policy = WallPolicy()
	case models.KindTower:
		r.policy = TowerPolicy()
	case models.KindConquerFeed, models.KindOD:
		if deps.Feed == nil {
			return nil, fmt.Errorf("reconciler %s: feed source is required", kind)
		}
	default:
		return nil, fmt.Errorf("reconciler: unknown kind %q", kind)
	}
	if (r.policy != nil || kind == models.KindOD) && deps.Baselines == nil {
		return nil, fmt.Errorf("reconciler %s: baseline reader is required", kind)
	}
	return r, nil
}

// Kind returns the tracker kind.
func (r *Reconciler) Kind() models.Kind {
	return r.kind
}

// Plan computes the cycle result for a world without writing anything
// except the initial feed cursor.
func (r *Reconciler) Plan(ctx context.Context, world string) (*database.CycleResult, *Outcome, error) {
	now := r.opts.Now().UTC().Truncate(time.Second)
	out := &Outcome{World: world, Kind: r.kind}

	var (
		res *database.CycleResult
		err error
	)
	switch r.kind {
	case models.KindConquerFeed:
		res, err = r.planRemote(ctx, world, now, out)
	case models.KindOD:
		res, err = r.planKills(ctx, world, now, out)
	default:
		res, err = r.planSnapshot(ctx, world, now, out)
	}
	if err != nil {
		return nil, nil, err
	}

	out.Detected = len(res.Events)
	out.Cursor = res.Cursor
	for _, states := range res.Baselines {
		out.BaselineWrites += len(states)
	}
	return res, out, nil
}

// Reconcile plans a world and commits the result atomically.
func (r *Reconciler) Reconcile(ctx context.Context, world string) (*Outcome, error) {
	res, out, err := r.Plan(ctx, world)
	if err != nil {
		return nil, err
	}

	if len(res.Events) > 0 || out.BaselineWrites > 0 || res.Cursor != nil {
		inserted, err := r.deps.Journal.Commit(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("commit %s/%s: %w", world, r.kind, err)
		}
		out.Journaled = inserted
	}

	metrics.EventsDetected.WithLabelValues(string(r.kind)).Add(float64(out.Journaled))
	metrics.BaselineUpdates.WithLabelValues(string(r.kind)).Add(float64(out.BaselineWrites))

	logger := logging.Ctx(ctx)
	logger.Debug().
		Str("world", world).
		Str("kind", string(r.kind)).
		Int("detected", out.Detected).
		Int("journaled", out.Journaled).
		Int("baseline_writes", out.BaselineWrites).
		Bool("seeded", out.Seeded).
		Bool("no_data", out.NoData).
		Msg("World reconciled")
	return out, nil
}

// planSnapshot diffs the village snapshot with the kind's baseline.
func (r *Reconciler) planSnapshot(ctx context.Context, world string, now time.Time, out *Outcome) (*database.CycleResult, error) {
	villages, err := r.deps.Snapshots.ListEntities(ctx, world)
	if err != nil {
		return nil, err
	}
	scope := string(r.kind)
	baseline, err := r.deps.Baselines.GetAll(ctx, world, scope)
	if err != nil {
		return nil, err
	}
	out.Seeded = len(baseline) == 0 && len(villages) > 0

	observations := make([]Observation, len(villages))
	for i := range villages {
		v := &villages[i]
		observations[i] = Observation{ID: v.ID, OwnerID: v.PlayerID, TribeID: v.TribeID, Magnitude: v.Points}
	}

	events, updates := scan(world, r.policy, observations, baseline, now)
	return &database.CycleResult{
		World:     world,
		Kind:      r.kind,
		Events:    events,
		Baselines: map[string]map[int64]models.BaselineState{scope: updates},
	}, nil
}

// planKills runs the kill policy once per kill type. A kill file that
// cannot be fetched is skipped this cycle; the others still proceed.
func (r *Reconciler) planKills(ctx context.Context, world string, now time.Time, out *Outcome) (*database.CycleResult, error) {
	res := &database.CycleResult{
		World:     world,
		Kind:      r.kind,
		Baselines: make(map[string]map[int64]models.BaselineState),
	}

	tribes, err := r.deps.Snapshots.TribeMembership(ctx, world)
	if err != nil {
		return nil, err
	}

	fetched := 0
	for _, killType := range models.AllKillTypes() {
		scores, err := r.deps.Feed.FetchKillScores(ctx, world, killType)
		if errors.Is(err, feed.ErrNoData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		fetched++

		scope := string(killType)
		baseline, err := r.deps.Baselines.GetAll(ctx, world, scope)
		if err != nil {
			return nil, err
		}
		if len(baseline) == 0 && len(scores) > 0 {
			out.Seeded = true
		}

		observations := make([]Observation, len(scores))
		for i, s := range scores {
			observations[i] = Observation{ID: s.PlayerID, OwnerID: s.PlayerID, TribeID: tribes[s.PlayerID], Magnitude: s.Kills}
		}

		events, updates := scan(world, NewKillPolicy(killType, r.opts.Cooldown), observations, baseline, now)
		res.Events = append(res.Events, events...)
		res.Baselines[scope] = updates
	}

	out.NoData = fetched == 0
	return res, nil
}

// scan is the shared diff loop: first-seen entities are seeded without an
// event, known entities are judged by the policy.
func scan(world string, policy Policy, observations []Observation, baseline map[int64]models.BaselineState, now time.Time) ([]models.Event, map[int64]models.BaselineState) {
	var events []models.Event
	updates := make(map[int64]models.BaselineState)

	for _, cur := range observations {
		prev, known := baseline[cur.ID]
		if !known {
			updates[cur.ID] = seed(cur)
			continue
		}

		event, next, write := policy.Evaluate(world, cur, prev, now)
		if write {
			updates[cur.ID] = next
		}
		if event != nil {
			events = append(events, *event)
		}
	}
	return events, updates
}
