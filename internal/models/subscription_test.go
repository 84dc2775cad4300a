// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package models

import (
	"testing"
	"time"
)

func TestSubscription_Matches(t *testing.T) {
	t.Parallel()

	conquer := &Event{
		World:        "nl101",
		Kind:         KindConquer,
		OldTribeID:   7,
		NewTribeID:   9,
		NewMagnitude: 3000,
	}
	od := &Event{
		World:        "nl101",
		Kind:         KindOD,
		OldTribeID:   7,
		NewTribeID:   7,
		OldMagnitude: 1000,
		NewMagnitude: 1400,
	}

	tests := []struct {
		name  string
		sub   Subscription
		event *Event
		want  bool
	}{
		{"new tribe matches", Subscription{World: "nl101", Kind: KindConquer, TribeID: 9}, conquer, true},
		{"old tribe matches", Subscription{World: "nl101", Kind: KindConquer, TribeID: 7}, conquer, true},
		{"other tribe", Subscription{World: "nl101", Kind: KindConquer, TribeID: 3}, conquer, false},
		{"wildcard", Subscription{World: "nl101", Kind: KindConquer, TribeID: AllTribes}, conquer, true},
		{"other world", Subscription{World: "nl102", Kind: KindConquer}, conquer, false},
		{"other kind", Subscription{World: "nl101", Kind: KindAcademy}, conquer, false},
		{"points floor met", Subscription{World: "nl101", Kind: KindConquer, MinMagnitude: 3000}, conquer, true},
		{"points floor missed", Subscription{World: "nl101", Kind: KindConquer, MinMagnitude: 3001}, conquer, false},
		{"kill delta floor met", Subscription{World: "nl101", Kind: KindOD, MinMagnitude: 400}, od, true},
		{"kill delta floor missed", Subscription{World: "nl101", Kind: KindOD, MinMagnitude: 401}, od, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.sub.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscription_FilterKey(t *testing.T) {
	t.Parallel()

	all := Subscription{TribeID: AllTribes}
	if got := all.FilterKey(); got != "tribe:all" {
		t.Errorf("FilterKey() = %q, want tribe:all", got)
	}
	one := Subscription{TribeID: 42}
	if got := one.FilterKey(); got != "tribe:42" {
		t.Errorf("FilterKey() = %q, want tribe:42", got)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind(" Tower ")
	if err != nil || k != KindTower {
		t.Errorf("ParseKind(Tower) = %q, %v", k, err)
	}
	if _, err := ParseKind("farm"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestEventKeys(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1700000000, 0)
	if got := OwnershipKey(KindConquer, "nl101", 5, ts, 1, 2); got != "conquer/nl101/5/1700000000/1-2" {
		t.Errorf("OwnershipKey() = %q", got)
	}
	if got := KillKey("nl101", 9, KillAttack, 10, 20); got != "od/nl101/9/kill_att/10-20" {
		t.Errorf("KillKey() = %q", got)
	}
}

func TestKillTypeLabel(t *testing.T) {
	t.Parallel()

	want := map[KillType]string{KillAttack: "ODA", KillDefense: "ODD", KillSupport: "ODS"}
	for kt, label := range want {
		if kt.Label() != label {
			t.Errorf("%s.Label() = %q, want %q", kt, kt.Label(), label)
		}
	}
}
