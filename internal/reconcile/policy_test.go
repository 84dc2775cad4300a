// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package reconcile

import (
	"testing"
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestOwnershipPolicy(t *testing.T) {
	prev := models.BaselineState{OwnerID: 10, TribeID: 100, Magnitude: 3000}

	tests := []struct {
		name      string
		cur       Observation
		wantEvent bool
		wantWrite bool
	}{
		{"unchanged", Observation{ID: 1, OwnerID: 10, TribeID: 100, Magnitude: 3050}, false, false},
		{"owner changed", Observation{ID: 1, OwnerID: 11, TribeID: 200, Magnitude: 3000}, true, true},
		{"owner changed same tribe", Observation{ID: 1, OwnerID: 11, TribeID: 100, Magnitude: 3000}, true, true},
		{"tribe toggled", Observation{ID: 1, OwnerID: 10, TribeID: 0, Magnitude: 3000}, false, true},
		{"to barbarian", Observation{ID: 1, OwnerID: 0, TribeID: 0, Magnitude: 3000}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, next, write := OwnershipPolicy{}.Evaluate("nl90", tt.cur, prev, testNow)
			if (event != nil) != tt.wantEvent {
				t.Fatalf("event = %+v, want event %v", event, tt.wantEvent)
			}
			if write != tt.wantWrite {
				t.Errorf("write = %v, want %v", write, tt.wantWrite)
			}
			if write && (next.OwnerID != tt.cur.OwnerID || next.TribeID != tt.cur.TribeID) {
				t.Errorf("next = %+v, want current owner and tribe", next)
			}
			if event == nil {
				return
			}
			if event.OldOwnerID != 10 || event.NewOwnerID != tt.cur.OwnerID {
				t.Errorf("owners = %d -> %d", event.OldOwnerID, event.NewOwnerID)
			}
			if event.OldTribeID != 100 || event.NewTribeID != tt.cur.TribeID {
				t.Errorf("tribes = %d -> %d", event.OldTribeID, event.NewTribeID)
			}
			wantKey := models.OwnershipKey(models.KindConquer, "nl90", 1, testNow, 10, tt.cur.OwnerID)
			if event.Key != wantKey {
				t.Errorf("Key = %q, want %q", event.Key, wantKey)
			}
		})
	}
}

func TestMagnitudePolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    *MagnitudePolicy
		prev, cur int64
		wantLevel int // 0 means no event
	}{
		{"academy 1200 to 688", AcademyPolicy(), 1200, 688, 1},
		{"academy 1200 to 687", AcademyPolicy(), 1200, 687, 0},
		{"academy drop 513", AcademyPolicy(), 2000, 1487, 0},
		{"academy gain 512", AcademyPolicy(), 688, 1200, 0},
		{"wall drop 256", WallPolicy(), 5000, 4744, 20},
		{"wall drop 255", WallPolicy(), 5000, 4745, 0},
		{"tower 1100 to 1255", TowerPolicy(), 1100, 1255, 18},
		{"tower 1000 to 1155 below floor", TowerPolicy(), 1000, 1155, 0},
		{"tower 1045 to 1200 at floor", TowerPolicy(), 1045, 1200, 18},
		{"tower gain 186", TowerPolicy(), 2000, 2186, 19},
		{"tower gain 224", TowerPolicy(), 2000, 2224, 20},
		{"tower gain 225", TowerPolicy(), 2000, 2225, 0},
		{"tower drop 155", TowerPolicy(), 2155, 2000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := models.BaselineState{OwnerID: 10, TribeID: 100, Magnitude: tt.prev}
			cur := Observation{ID: 7, OwnerID: 10, TribeID: 100, Magnitude: tt.cur}

			event, next, write := tt.policy.Evaluate("nl90", cur, prev, testNow)
			if !write || next.Magnitude != tt.cur {
				t.Errorf("baseline must always be refreshed: write=%v next=%+v", write, next)
			}
			if tt.wantLevel == 0 {
				if event != nil {
					t.Errorf("unexpected event %+v", event)
				}
				return
			}
			if event == nil {
				t.Fatal("expected event")
			}
			if event.Level != tt.wantLevel {
				t.Errorf("Level = %d, want %d", event.Level, tt.wantLevel)
			}
			if event.OldMagnitude != tt.prev || event.NewMagnitude != tt.cur {
				t.Errorf("magnitudes = %d -> %d", event.OldMagnitude, event.NewMagnitude)
			}
			if event.Kind != tt.policy.Kind() {
				t.Errorf("Kind = %s, want %s", event.Kind, tt.policy.Kind())
			}
		})
	}
}

func TestMagnitudePolicy_UnchangedSkipsWrite(t *testing.T) {
	prev := models.BaselineState{OwnerID: 10, TribeID: 100, Magnitude: 1200}
	cur := Observation{ID: 7, OwnerID: 10, TribeID: 100, Magnitude: 1200}

	event, _, write := WallPolicy().Evaluate("nl90", cur, prev, testNow)
	if event != nil || write {
		t.Errorf("unchanged village: event=%v write=%v", event, write)
	}
}

func TestKillPolicy(t *testing.T) {
	policy := NewKillPolicy(models.KillAttack, time.Hour)
	cur := Observation{ID: 10, OwnerID: 10, TribeID: 100, Magnitude: 1500}

	tests := []struct {
		name      string
		prev      models.BaselineState
		cur       int64
		wantEvent bool
	}{
		{"first increase", models.BaselineState{Magnitude: 1000}, 1500, true},
		{"within cooldown", models.BaselineState{Magnitude: 1000, ChangedAt: testNow.Add(-30 * time.Minute)}, 1500, false},
		{"cooldown elapsed", models.BaselineState{Magnitude: 1000, ChangedAt: testNow.Add(-time.Hour)}, 1500, true},
		{"no change", models.BaselineState{Magnitude: 1500}, 1500, false},
		{"decrease", models.BaselineState{Magnitude: 2000}, 1500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := cur
			obs.Magnitude = tt.cur
			event, next, write := policy.Evaluate("nl90", obs, tt.prev, testNow)

			if (event != nil) != tt.wantEvent {
				t.Fatalf("event = %+v, want event %v", event, tt.wantEvent)
			}
			if !tt.wantEvent {
				if write {
					t.Error("suppressed increase must leave the baseline untouched")
				}
				return
			}
			if !write || next.Magnitude != tt.cur || !next.ChangedAt.Equal(testNow) {
				t.Errorf("next = %+v, write = %v", next, write)
			}
			if event.Delta() != tt.cur-tt.prev.Magnitude {
				t.Errorf("Delta() = %d", event.Delta())
			}
			if event.Metric != string(models.KillAttack) {
				t.Errorf("Metric = %q", event.Metric)
			}
			if event.Key != models.KillKey("nl90", 10, models.KillAttack, tt.prev.Magnitude, tt.cur) {
				t.Errorf("Key = %q", event.Key)
			}
		})
	}
}

func TestScan_SeedsFirstSeen(t *testing.T) {
	observations := []Observation{
		{ID: 1, OwnerID: 10, TribeID: 100, Magnitude: 1000},
		{ID: 2, OwnerID: 11, TribeID: 100, Magnitude: 2000},
	}
	baseline := map[int64]models.BaselineState{
		2: {OwnerID: 12, TribeID: 200, Magnitude: 2000},
	}

	events, updates := scan("nl90", OwnershipPolicy{}, observations, baseline, testNow)
	if len(events) != 1 || events[0].EntityID != 2 {
		t.Fatalf("events = %+v, want one for village 2", events)
	}
	if got := updates[1]; got.OwnerID != 10 {
		t.Errorf("first-seen baseline = %+v", got)
	}
	if got := updates[2]; got.OwnerID != 11 {
		t.Errorf("changed baseline = %+v", got)
	}
}
