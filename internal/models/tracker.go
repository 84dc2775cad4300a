// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package models

import (
	"fmt"
	"strings"
)

// Kind identifies a tracker kind. Each kind runs its own loop and owns its
// own baseline scope, subscriptions and journal entries.
type Kind string

const (
	// KindConquer detects ownership changes by diffing the village snapshot.
	KindConquer Kind = "conquer"

	// KindConquerFeed reads ownership changes from the authoritative conquer feed.
	KindConquerFeed Kind = "conquer_feed"

	// KindAcademy detects an academy being built (exact point drop of 512).
	KindAcademy Kind = "academy"

	// KindWall detects a wall being demolished from 20 to 0 (exact point drop of 256).
	KindWall Kind = "wall"

	// KindTower detects watchtower levels 18-20 (exact point gains).
	KindTower Kind = "tower"

	// KindOD detects kill-score (opponents defeated) increases.
	KindOD Kind = "od"
)

// AllKinds returns every tracker kind in a stable order.
func AllKinds() []Kind {
	return []Kind{KindConquer, KindConquerFeed, KindAcademy, KindWall, KindTower, KindOD}
}

// Valid reports whether k is a known tracker kind.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind normalizes and validates a tracker kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown tracker kind %q", s)
	}
	return k, nil
}

// KillType is one of the three kill-score files published per world.
type KillType string

const (
	KillAttack  KillType = "kill_att"
	KillDefense KillType = "kill_def"
	KillSupport KillType = "kill_sup"
)

// AllKillTypes returns the kill types in publication order.
func AllKillTypes() []KillType {
	return []KillType{KillAttack, KillDefense, KillSupport}
}

// Label returns the in-game abbreviation shown to players.
func (k KillType) Label() string {
	switch k {
	case KillAttack:
		return "ODA"
	case KillDefense:
		return "ODD"
	case KillSupport:
		return "ODS"
	default:
		return strings.ToUpper(string(k))
	}
}

// NormalizeWorld lower-cases and trims a world identifier.
func NormalizeWorld(world string) string {
	return strings.ToLower(strings.TrimSpace(world))
}
