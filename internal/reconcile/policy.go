// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package reconcile

import (
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// Observation is the current state of one entity as seen in a snapshot or kill file.
type Observation struct {
	ID        int64
	OwnerID   int64
	TribeID   int64
	Magnitude int64
}

// Policy decides, for one entity with a stored baseline, which event (if
// any) fires and which baseline must be written. First-seen entities never
// reach a policy; the scan loop seeds them.
type Policy interface {
	// Kind is the tracker kind whose events the policy emits.
	Kind() models.Kind

	// Evaluate compares cur against prev. write reports whether next must be stored.
	Evaluate(world string, cur Observation, prev models.BaselineState, now time.Time) (event *models.Event, next models.BaselineState, write bool)
}

// seed is the baseline recorded for a first-seen entity.
func seed(cur Observation) models.BaselineState {
	return models.BaselineState{OwnerID: cur.OwnerID, TribeID: cur.TribeID, Magnitude: cur.Magnitude}
}

// OwnershipPolicy emits a conquer event when a village changes owner.
type OwnershipPolicy struct{}

// Kind implements Policy.
func (OwnershipPolicy) Kind() models.Kind { return models.KindConquer }

// Evaluate implements Policy. A tribe change without an owner change only
// refreshes the baseline.
func (OwnershipPolicy) Evaluate(world string, cur Observation, prev models.BaselineState, now time.Time) (*models.Event, models.BaselineState, bool) {
	if cur.OwnerID == prev.OwnerID && cur.TribeID == prev.TribeID {
		return nil, prev, false
	}

	next := seed(cur)
	if cur.OwnerID == prev.OwnerID {
		return nil, next, true
	}

	return &models.Event{
		Key:          models.OwnershipKey(models.KindConquer, world, cur.ID, now, prev.OwnerID, cur.OwnerID),
		World:        world,
		Kind:         models.KindConquer,
		EntityID:     cur.ID,
		Transition:   models.TransitionConquer,
		OldOwnerID:   prev.OwnerID,
		NewOwnerID:   cur.OwnerID,
		OldTribeID:   prev.TribeID,
		NewTribeID:   cur.TribeID,
		OldMagnitude: prev.Magnitude,
		NewMagnitude: cur.Magnitude,
		DetectedAt:   now,
	}, next, true
}

// MagnitudePolicy matches an exact point delta against a lookup table.
// Drop policies use previous - current, gain policies current - previous
// and additionally require current >= Floor. The baseline is refreshed on
// every change whether or not an event fires.
type MagnitudePolicy struct {
	kind       models.Kind
	transition models.Transition
	levels     map[int64]int
	floor      int64
}

// NewDropPolicy detects an exact point drop listed in levels.
func NewDropPolicy(kind models.Kind, levels map[int64]int) *MagnitudePolicy {
	return &MagnitudePolicy{kind: kind, transition: models.TransitionDrop, levels: levels}
}

// NewGainPolicy detects an exact point gain listed in levels with current >= floor.
func NewGainPolicy(kind models.Kind, levels map[int64]int, floor int64) *MagnitudePolicy {
	return &MagnitudePolicy{kind: kind, transition: models.TransitionGain, levels: levels, floor: floor}
}

// AcademyPolicy fires when a village loses exactly 512 points.
func AcademyPolicy() *MagnitudePolicy {
	return NewDropPolicy(models.KindAcademy, map[int64]int{512: 1})
}

// WallPolicy fires when a wall is demolished from level 20 to 0 (256 points).
func WallPolicy() *MagnitudePolicy {
	return NewDropPolicy(models.KindWall, map[int64]int{256: 20})
}

// TowerPolicy fires on watchtower levels 18, 19 and 20.
func TowerPolicy() *MagnitudePolicy {
	return NewGainPolicy(models.KindTower, map[int64]int{155: 18, 186: 19, 224: 20}, 1200)
}

// Kind implements Policy.
func (p *MagnitudePolicy) Kind() models.Kind { return p.kind }

// Evaluate implements Policy.
func (p *MagnitudePolicy) Evaluate(world string, cur Observation, prev models.BaselineState, now time.Time) (*models.Event, models.BaselineState, bool) {
	if cur.Magnitude == prev.Magnitude && cur.OwnerID == prev.OwnerID && cur.TribeID == prev.TribeID {
		return nil, prev, false
	}
	next := seed(cur)

	delta := cur.Magnitude - prev.Magnitude
	if p.transition == models.TransitionDrop {
		delta = -delta
	}
	level, ok := p.levels[delta]
	if !ok || cur.Magnitude < p.floor {
		return nil, next, true
	}

	return &models.Event{
		Key:          models.MagnitudeKey(p.kind, world, cur.ID, now, prev.Magnitude, cur.Magnitude),
		World:        world,
		Kind:         p.kind,
		EntityID:     cur.ID,
		Transition:   p.transition,
		OldOwnerID:   prev.OwnerID,
		NewOwnerID:   cur.OwnerID,
		OldTribeID:   prev.TribeID,
		NewTribeID:   cur.TribeID,
		OldMagnitude: prev.Magnitude,
		NewMagnitude: cur.Magnitude,
		Level:        level,
		DetectedAt:   now,
	}, next, true
}

// KillPolicy accepts a kill-score increase at most once per cooldown. A
// suppressed increase leaves the baseline untouched so the delta keeps
// accumulating until the cooldown has passed. Decreases are ignored.
type KillPolicy struct {
	killType models.KillType
	cooldown time.Duration
}

// NewKillPolicy creates the policy for one kill type.
func NewKillPolicy(killType models.KillType, cooldown time.Duration) *KillPolicy {
	return &KillPolicy{killType: killType, cooldown: cooldown}
}

// Kind implements Policy.
func (p *KillPolicy) Kind() models.Kind { return models.KindOD }

// Evaluate implements Policy.
func (p *KillPolicy) Evaluate(world string, cur Observation, prev models.BaselineState, now time.Time) (*models.Event, models.BaselineState, bool) {
	if cur.Magnitude <= prev.Magnitude {
		return nil, prev, false
	}
	if !prev.ChangedAt.IsZero() && now.Sub(prev.ChangedAt) < p.cooldown {
		return nil, prev, false
	}

	next := seed(cur)
	next.ChangedAt = now

	return &models.Event{
		Key:          models.KillKey(world, cur.ID, p.killType, prev.Magnitude, cur.Magnitude),
		World:        world,
		Kind:         models.KindOD,
		EntityID:     cur.ID,
		Transition:   models.TransitionIncrease,
		OldOwnerID:   cur.ID,
		NewOwnerID:   cur.ID,
		OldTribeID:   cur.TribeID,
		NewTribeID:   cur.TribeID,
		OldMagnitude: prev.Magnitude,
		NewMagnitude: cur.Magnitude,
		Metric:       string(p.killType),
		DetectedAt:   now,
	}, next, true
}
