// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package models

import (
	"fmt"
	"time"
)

// Transition classifies what changed for an entity.
type Transition string

const (
	TransitionConquer  Transition = "conquer"
	TransitionDrop     Transition = "drop"
	TransitionGain     Transition = "gain"
	TransitionIncrease Transition = "increase"
)

// Event is a detected transition. It is journaled before delivery and its
// Key identifies it in the dedup ledger.
type Event struct {
	Key          string     `json:"key"`
	World        string     `json:"world"`
	Kind         Kind       `json:"kind"`
	EntityID     int64      `json:"entity_id"` // village id, or player id for kill scores
	Transition   Transition `json:"transition"`
	OldOwnerID   int64      `json:"old_owner_id"`
	NewOwnerID   int64      `json:"new_owner_id"`
	OldTribeID   int64      `json:"old_tribe_id"`
	NewTribeID   int64      `json:"new_tribe_id"`
	OldMagnitude int64      `json:"old_magnitude"`
	NewMagnitude int64      `json:"new_magnitude"`
	Level        int        `json:"level,omitempty"`
	Metric       string     `json:"metric,omitempty"` // kill type for kill-score events
	DetectedAt   time.Time  `json:"detected_at"`
}

// Delta returns the absolute magnitude change carried by the event.
func (e *Event) Delta() int64 {
	d := e.NewMagnitude - e.OldMagnitude
	if d < 0 {
		return -d
	}
	return d
}

// MagnitudeOfInterest is the value compared against a subscription's floor.
// Kill-score events are filtered on the increase, everything else on the
// village points at detection time.
func (e *Event) MagnitudeOfInterest() int64 {
	if e.Kind == KindOD {
		return e.Delta()
	}
	return e.NewMagnitude
}

// InvolvesTribe reports whether tribeID is on either side of the transition.
func (e *Event) InvolvesTribe(tribeID int64) bool {
	return e.OldTribeID == tribeID || e.NewTribeID == tribeID
}

// OwnershipKey builds the key for an ownership transition observed at ts.
func OwnershipKey(kind Kind, world string, villageID int64, ts time.Time, oldOwner, newOwner int64) string {
	return fmt.Sprintf("%s/%s/%d/%d/%d-%d", kind, world, villageID, ts.Unix(), oldOwner, newOwner)
}

// MagnitudeKey builds the key for a magnitude transition observed at ts.
func MagnitudeKey(kind Kind, world string, villageID int64, ts time.Time, oldValue, newValue int64) string {
	return fmt.Sprintf("%s/%s/%d/%d/%d-%d", kind, world, villageID, ts.Unix(), oldValue, newValue)
}

// KillKey builds the key for a kill-score increase. The old and new scores
// already make it unique, so no timestamp is included.
func KillKey(world string, playerID int64, killType KillType, oldValue, newValue int64) string {
	return fmt.Sprintf("%s/%s/%d/%s/%d-%d", KindOD, world, playerID, killType, oldValue, newValue)
}

// EventStatus is the dispatch state of a journaled event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventDone      EventStatus = "done"
	EventAbandoned EventStatus = "abandoned"
)

// JournalEntry is an event together with its dispatch bookkeeping.
type JournalEntry struct {
	Event
	Status    EventStatus `json:"status"`
	Attempts  int         `json:"attempts"`
	UpdatedAt time.Time   `json:"updated_at"`
}
