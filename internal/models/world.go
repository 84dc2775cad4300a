// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package models

import "time"

// Village is one row of the village snapshot. PlayerID 0 is a barbarian
// village and TribeID 0 means the owner has no tribe.
type Village struct {
	World    string `json:"world"`
	ID       int64  `json:"village_id"`
	Name     string `json:"name"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	PlayerID int64  `json:"player_id"`
	TribeID  int64  `json:"tribe_id"`
	Points   int64  `json:"points"`
}

// Player is one row of the player snapshot.
type Player struct {
	World    string `json:"world"`
	ID       int64  `json:"player_id"`
	Name     string `json:"name"`
	TribeID  int64  `json:"tribe_id"`
	Villages int    `json:"villages"`
	Points   int64  `json:"points"`
}

// Tribe is one row of the tribe snapshot.
type Tribe struct {
	World string `json:"world"`
	ID    int64  `json:"tribe_id"`
	Name  string `json:"name"`
	Tag   string `json:"tag"`
}

// Snapshot is a complete world state as written by the ingestion side.
type Snapshot struct {
	Villages []Village `json:"villages"`
	Players  []Player  `json:"players"`
	Tribes   []Tribe   `json:"tribes"`
}

// BaselineState is the last observed state of one entity within a scope.
type BaselineState struct {
	OwnerID   int64     `json:"owner_id"`
	TribeID   int64     `json:"tribe_id"`
	Magnitude int64     `json:"magnitude"`
	ChangedAt time.Time `json:"changed_at"` // last accepted change (kill-score cooldown)
}

// FeedEntry is one parsed row of the remote conquer feed.
type FeedEntry struct {
	VillageID  int64 `json:"village_id"`
	Timestamp  int64 `json:"timestamp"` // unix seconds
	NewOwnerID int64 `json:"new_owner_id"`
	OldOwnerID int64 `json:"old_owner_id"`
}

// KillScore is one parsed row of a kill-score file.
type KillScore struct {
	Rank     int   `json:"rank"`
	PlayerID int64 `json:"player_id"`
	Kills    int64 `json:"kills"`
}
