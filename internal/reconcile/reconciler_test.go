// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/feed"
	"github.com/tomtom215/tribewatch/internal/models"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db := database.NewFromConn(conn)
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeFeed serves canned feed data and records the requested cursors.
type fakeFeed struct {
	mu      sync.Mutex
	entries []models.FeedEntry
	kills   map[models.KillType][]models.KillScore
	err     error
	since   []int64
}

func (f *fakeFeed) FetchDeltasSince(_ context.Context, _ string, since int64) ([]models.FeedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeFeed) FetchKillScores(_ context.Context, _ string, killType models.KillType) ([]models.KillScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	scores, ok := f.kills[killType]
	if !ok {
		return nil, fmt.Errorf("%w: no %s file", feed.ErrNoData, killType)
	}
	return scores, nil
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newReconciler(t *testing.T, db *database.DB, kind models.Kind, src FeedSource, clock *testClock) *Reconciler {
	t.Helper()
	r, err := New(kind, Deps{
		Snapshots: db,
		Baselines: db.Baselines(),
		Journal:   db,
		Feed:      src,
	}, Options{Cooldown: time.Hour, Now: clock.Now})
	if err != nil {
		t.Fatalf("New(%s) error = %v", kind, err)
	}
	return r
}

func loadSnapshot(t *testing.T, db *database.DB, villages ...models.Village) {
	t.Helper()
	snap := &models.Snapshot{
		Villages: villages,
		Players: []models.Player{
			{ID: 10, Name: "Alpha", TribeID: 100},
			{ID: 11, Name: "Bravo", TribeID: 200},
		},
		Tribes: []models.Tribe{
			{ID: 100, Name: "First", Tag: "ONE"},
			{ID: 200, Name: "Second", Tag: "TWO"},
		},
	}
	if err := db.ReplaceSnapshot(context.Background(), "nl90", snap); err != nil {
		t.Fatalf("ReplaceSnapshot() error = %v", err)
	}
}

func pending(t *testing.T, db *database.DB, kind models.Kind) []models.JournalEntry {
	t.Helper()
	entries, err := db.PendingEvents(context.Background(), "nl90", kind, 0)
	if err != nil {
		t.Fatalf("PendingEvents() error = %v", err)
	}
	return entries
}

func TestNew_Validation(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name    string
		kind    models.Kind
		deps    Deps
		wantErr bool
	}{
		{"snapshot kind", models.KindWall, Deps{Snapshots: db, Baselines: db.Baselines(), Journal: db}, false},
		{"missing journal", models.KindWall, Deps{Snapshots: db, Baselines: db.Baselines()}, true},
		{"missing baselines", models.KindAcademy, Deps{Snapshots: db, Journal: db}, true},
		{"feed kind without feed", models.KindConquerFeed, Deps{Snapshots: db, Journal: db}, true},
		{"feed kind", models.KindConquerFeed, Deps{Snapshots: db, Journal: db, Feed: &fakeFeed{}}, false},
		{"kills without baselines", models.KindOD, Deps{Snapshots: db, Journal: db, Feed: &fakeFeed{}}, true},
		{"unknown kind", models.Kind("farm"), Deps{Snapshots: db, Baselines: db.Baselines(), Journal: db}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.deps, Options{})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReconcile_SnapshotSeedThenDetect(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	clock := &testClock{now: testNow}
	r := newReconciler(t, db, models.KindConquer, nil, clock)

	loadSnapshot(t, db,
		models.Village{ID: 1, Name: "A", PlayerID: 10, TribeID: 100, Points: 3000},
		models.Village{ID: 2, Name: "B", PlayerID: 11, TribeID: 200, Points: 4000},
	)

	out, err := r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !out.Seeded || out.Detected != 0 || out.BaselineWrites != 2 {
		t.Fatalf("seed outcome = %+v", out)
	}

	// A second cycle over the same snapshot is a no-op.
	clock.Advance(time.Minute)
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Seeded || out.Detected != 0 || out.BaselineWrites != 0 {
		t.Fatalf("steady outcome = %+v", out)
	}

	// Village 1 is conquered by player 11.
	loadSnapshot(t, db,
		models.Village{ID: 1, Name: "A", PlayerID: 11, TribeID: 200, Points: 3000},
		models.Village{ID: 2, Name: "B", PlayerID: 11, TribeID: 200, Points: 4000},
	)
	clock.Advance(time.Minute)
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Detected != 1 || out.Journaled != 1 {
		t.Fatalf("conquest outcome = %+v", out)
	}

	entries := pending(t, db, models.KindConquer)
	if len(entries) != 1 {
		t.Fatalf("pending = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.EntityID != 1 || e.OldOwnerID != 10 || e.NewOwnerID != 11 || e.OldTribeID != 100 || e.NewTribeID != 200 {
		t.Errorf("journaled event = %+v", e.Event)
	}

	baseline, err := db.Baselines().GetAll(ctx, "nl90", string(models.KindConquer))
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if baseline[1].OwnerID != 11 {
		t.Errorf("baseline not advanced: %+v", baseline[1])
	}
}

func TestReconcile_ScopesAreIndependent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	clock := &testClock{now: testNow}
	walls := newReconciler(t, db, models.KindWall, nil, clock)
	academies := newReconciler(t, db, models.KindAcademy, nil, clock)

	loadSnapshot(t, db, models.Village{ID: 1, PlayerID: 10, TribeID: 100, Points: 5000})
	for _, r := range []*Reconciler{walls, academies} {
		if _, err := r.Reconcile(ctx, "nl90"); err != nil {
			t.Fatalf("seed %s: %v", r.Kind(), err)
		}
	}

	loadSnapshot(t, db, models.Village{ID: 1, PlayerID: 10, TribeID: 100, Points: 4744})
	clock.Advance(time.Minute)
	out, err := walls.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile(wall) error = %v", err)
	}
	if out.Detected != 1 {
		t.Errorf("wall detected = %d, want 1", out.Detected)
	}

	// The academy baseline still holds 5000 until its own cycle runs.
	baseline, err := db.Baselines().GetAll(ctx, "nl90", string(models.KindAcademy))
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if baseline[1].Magnitude != 5000 {
		t.Errorf("academy baseline = %d, want 5000", baseline[1].Magnitude)
	}
}

func TestReconcile_RemoteFeedCursor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	clock := &testClock{now: testNow}
	src := &fakeFeed{}
	r := newReconciler(t, db, models.KindConquerFeed, src, clock)

	loadSnapshot(t, db, models.Village{ID: 5, PlayerID: 11, TribeID: 200, Points: 9000})

	// First run with an empty feed stores the fallback cursor and keeps it.
	out, err := r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	fallback := testNow.Unix() - 3600
	if out.Cursor != nil || out.Detected != 0 {
		t.Fatalf("empty feed outcome = %+v", out)
	}
	cursor, ok, err := db.Cursor(ctx, "nl90", models.KindConquerFeed)
	if err != nil || !ok || cursor != fallback {
		t.Fatalf("Cursor() = %d, %v, %v; want %d", cursor, ok, err, fallback)
	}
	if src.since[0] != fallback {
		t.Errorf("requested since = %d, want %d", src.since[0], fallback)
	}

	// Entries advance the cursor to one past the newest timestamp.
	ts1, ts2 := testNow.Unix()-600, testNow.Unix()-60
	src.entries = []models.FeedEntry{
		{VillageID: 5, Timestamp: ts2, NewOwnerID: 11, OldOwnerID: 10},
		{VillageID: 6, Timestamp: ts1, NewOwnerID: 10, OldOwnerID: 0},
	}
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Journaled != 2 {
		t.Fatalf("journaled = %d, want 2", out.Journaled)
	}
	cursor, _, _ = db.Cursor(ctx, "nl90", models.KindConquerFeed)
	if cursor != ts2+1 {
		t.Errorf("cursor = %d, want %d", cursor, ts2+1)
	}

	entries := pending(t, db, models.KindConquerFeed)
	if len(entries) != 2 {
		t.Fatalf("pending = %d, want 2", len(entries))
	}
	for _, e := range entries {
		switch e.EntityID {
		case 5:
			if e.NewTribeID != 200 || e.OldTribeID != 100 || e.NewMagnitude != 9000 {
				t.Errorf("village 5 event = %+v", e.Event)
			}
			if !e.DetectedAt.Equal(time.Unix(ts2, 0)) {
				t.Errorf("DetectedAt = %v, want feed timestamp", e.DetectedAt)
			}
		case 6:
			if e.NewMagnitude != 0 || e.OldTribeID != 0 {
				t.Errorf("village 6 (not in snapshot) event = %+v", e.Event)
			}
		}
	}

	// Replaying the same rows journals nothing new and keeps the cursor.
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Journaled != 0 {
		t.Errorf("replay journaled = %d, want 0", out.Journaled)
	}
	if got := src.since[len(src.since)-1]; got != ts2+1 {
		t.Errorf("replay since = %d, want %d", got, ts2+1)
	}

	// An unreachable feed leaves the cursor alone.
	src.err = feed.ErrNoData
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !out.NoData {
		t.Error("NoData = false, want true")
	}
	cursor, _, _ = db.Cursor(ctx, "nl90", models.KindConquerFeed)
	if cursor != ts2+1 {
		t.Errorf("cursor after no-data = %d, want %d", cursor, ts2+1)
	}
}

func TestReconcile_RemoteFeedClampsLookback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	clock := &testClock{now: testNow}
	src := &fakeFeed{}
	r := newReconciler(t, db, models.KindConquerFeed, src, clock)

	stale := testNow.Add(-72 * time.Hour).Unix()
	if err := db.SetCursor(ctx, "nl90", models.KindConquerFeed, stale); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}
	if _, err := r.Reconcile(ctx, "nl90"); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if want := testNow.Unix() - 84600; src.since[0] != want {
		t.Errorf("since = %d, want %d", src.since[0], want)
	}
}

func TestReconcile_KillScores(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	clock := &testClock{now: testNow}
	src := &fakeFeed{kills: map[models.KillType][]models.KillScore{
		models.KillAttack: {{Rank: 1, PlayerID: 10, Kills: 1000}},
	}}
	r := newReconciler(t, db, models.KindOD, src, clock)
	loadSnapshot(t, db)

	out, err := r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !out.Seeded || out.Detected != 0 || out.NoData {
		t.Fatalf("seed outcome = %+v", out)
	}

	setKills := func(kills int64) {
		src.mu.Lock()
		src.kills[models.KillAttack] = []models.KillScore{{Rank: 1, PlayerID: 10, Kills: kills}}
		src.mu.Unlock()
	}

	setKills(1500)
	clock.Advance(time.Minute)
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Detected != 1 {
		t.Fatalf("first increase detected = %d, want 1", out.Detected)
	}
	if e := pending(t, db, models.KindOD)[0]; e.NewTribeID != 100 || e.Metric != string(models.KillAttack) {
		t.Errorf("kill event = %+v", e.Event)
	}

	// Within the cooldown the increase is held back and keeps accumulating.
	setKills(1800)
	clock.Advance(20 * time.Minute)
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Detected != 0 {
		t.Errorf("detected within cooldown = %d", out.Detected)
	}

	setKills(2000)
	clock.Advance(45 * time.Minute)
	out, err = r.Reconcile(ctx, "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Detected != 1 {
		t.Fatalf("detected after cooldown = %d, want 1", out.Detected)
	}
	var found bool
	for _, e := range pending(t, db, models.KindOD) {
		if e.OldMagnitude == 1500 && e.NewMagnitude == 2000 {
			found = true
		}
	}
	if !found {
		t.Error("accumulated 1500 -> 2000 event not journaled")
	}
}

func TestReconcile_KillScoresNoData(t *testing.T) {
	db := setupTestDB(t)
	src := &fakeFeed{err: feed.ErrNoData}
	r := newReconciler(t, db, models.KindOD, src, &testClock{now: testNow})

	out, err := r.Reconcile(context.Background(), "nl90")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !out.NoData || out.BaselineWrites != 0 {
		t.Errorf("outcome = %+v", out)
	}
}
