// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/feed"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
)

// planRemote reads the conquer feed from the stored cursor. The cursor only
// moves forward, and only together with the events it covers.
func (r *Reconciler) planRemote(ctx context.Context, world string, now time.Time, out *Outcome) (*database.CycleResult, error) {
	res := &database.CycleResult{World: world, Kind: r.kind}
	nowUnix := now.Unix()

	cursor, ok, err := r.deps.Journal.Cursor(ctx, world, r.kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		cursor = nowUnix - int64(r.opts.FallbackLookback/time.Second)
		if err := r.deps.Journal.SetCursor(ctx, world, r.kind, cursor); err != nil {
			return nil, err
		}
		logging.Ctx(ctx).Info().
			Str("world", world).
			Int64("since", cursor).
			Msg("Initialized conquer feed cursor")
	}

	since := max(cursor, nowUnix-int64(r.opts.MaxLookback/time.Second))

	entries, err := r.deps.Feed.FetchDeltasSince(ctx, world, since)
	if errors.Is(err, feed.ErrNoData) {
		out.NoData = true
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return res, nil
	}

	ids := make([]int64, 0, 2*len(entries))
	seen := make(map[int64]struct{}, 2*len(entries))
	for _, e := range entries {
		for _, id := range []int64{e.NewOwnerID, e.OldOwnerID} {
			if _, dup := seen[id]; !dup && id != 0 {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	tribes, err := r.deps.Snapshots.PlayerTribes(ctx, world, ids)
	if err != nil {
		return nil, err
	}

	maxTS := entries[0].Timestamp
	for _, e := range entries {
		maxTS = max(maxTS, e.Timestamp)

		var points int64
		v, err := r.deps.Snapshots.Village(ctx, world, e.VillageID)
		switch {
		case err == nil:
			points = v.Points
		case !errors.Is(err, database.ErrNotFound):
			return nil, err
		}

		ts := time.Unix(e.Timestamp, 0).UTC()
		res.Events = append(res.Events, models.Event{
			Key:          models.OwnershipKey(models.KindConquerFeed, world, e.VillageID, ts, e.OldOwnerID, e.NewOwnerID),
			World:        world,
			Kind:         models.KindConquerFeed,
			EntityID:     e.VillageID,
			Transition:   models.TransitionConquer,
			OldOwnerID:   e.OldOwnerID,
			NewOwnerID:   e.NewOwnerID,
			OldTribeID:   tribes[e.OldOwnerID],
			NewTribeID:   tribes[e.NewOwnerID],
			OldMagnitude: points,
			NewMagnitude: points,
			DetectedAt:   ts,
		})
	}

	next := max(cursor, maxTS+1)
	res.Cursor = &next
	return res, nil
}
