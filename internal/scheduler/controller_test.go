// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tribewatch/internal/models"
)

// mapProbe answers HasAny from a mutable map.
type mapProbe struct {
	mu   sync.Mutex
	subs map[models.Kind]bool
	err  error
}

func (p *mapProbe) HasAny(_ context.Context, kind models.Kind) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[kind], p.err
}

func (p *mapProbe) set(kind models.Kind, has bool) {
	p.mu.Lock()
	p.subs[kind] = has
	p.mu.Unlock()
}

// supervisorHost runs tracker loops on a real suture supervisor.
type supervisorHost struct {
	sup     *suture.Supervisor
	mu      sync.Mutex
	added   int
	removed int
}

func (h *supervisorHost) AddTrackerService(svc suture.Service) suture.ServiceToken {
	h.mu.Lock()
	h.added++
	h.mu.Unlock()
	return h.sup.Add(svc)
}

func (h *supervisorHost) RemoveTrackerService(token suture.ServiceToken) error {
	h.mu.Lock()
	h.removed++
	h.mu.Unlock()
	return h.sup.Remove(token)
}

func (h *supervisorHost) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.added, h.removed
}

func newTestHost(t *testing.T) *supervisorHost {
	t.Helper()
	sup := suture.NewSimple("test-trackers")
	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return &supervisorHost{sup: sup}
}

func TestController_StartsAndStopsLoops(t *testing.T) {
	probe := &mapProbe{subs: map[models.Kind]bool{}}
	host := newTestHost(t)
	obs := &recordingObserver{}
	c := NewController(probe, host, time.Hour, obs)

	wallRec := &fakeReconciler{kind: models.KindWall}
	c.Register(NewTrackerLoop(wallRec, nil, staticWorlds{worlds: []string{"nl90"}}, LoopConfig{Interval: time.Hour}))
	c.Register(NewTrackerLoop(&fakeReconciler{kind: models.KindTower}, nil, staticWorlds{}, LoopConfig{Interval: time.Hour}))

	ctx := context.Background()
	c.Sync(ctx)
	if c.Running(models.KindWall) || c.Running(models.KindTower) {
		t.Fatal("loops running without subscriptions")
	}

	probe.set(models.KindWall, true)
	c.Sync(ctx)
	if !c.Running(models.KindWall) || c.Running(models.KindTower) {
		t.Fatal("wall loop should run alone")
	}

	// The added loop runs its first cycle right away.
	deadline := time.Now().Add(2 * time.Second)
	for wallRec.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("wall loop never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A second sync with no change is a no-op.
	c.Sync(ctx)
	if added, _ := host.counts(); added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	probe.set(models.KindWall, false)
	c.Sync(ctx)
	if c.Running(models.KindWall) {
		t.Fatal("wall loop still running after last subscription removed")
	}

	probe.set(models.KindWall, true)
	c.Sync(ctx)
	if !c.Running(models.KindWall) {
		t.Fatal("wall loop not restarted")
	}

	added, removed := host.counts()
	if added != 2 || removed != 1 {
		t.Errorf("added/removed = %d/%d, want 2/1", added, removed)
	}
	obs.mu.Lock()
	states := append([]bool(nil), obs.states...)
	obs.mu.Unlock()
	if len(states) != 3 || !states[0] || states[1] || !states[2] {
		t.Errorf("observed states = %v, want [true false true]", states)
	}
}

// gatedHost blocks RemoveTrackerService until release is closed.
type gatedHost struct {
	*supervisorHost
	removing chan struct{}
	release  chan struct{}
}

func (h *gatedHost) RemoveTrackerService(token suture.ServiceToken) error {
	close(h.removing)
	<-h.release
	return h.supervisorHost.RemoveTrackerService(token)
}

func TestController_StatusesDoNotWaitForStoppingLoop(t *testing.T) {
	probe := &mapProbe{subs: map[models.Kind]bool{models.KindWall: true}}
	host := &gatedHost{supervisorHost: newTestHost(t), removing: make(chan struct{}), release: make(chan struct{})}
	c := NewController(probe, host, time.Hour)
	c.Register(NewTrackerLoop(&fakeReconciler{kind: models.KindWall}, nil, staticWorlds{}, LoopConfig{Interval: time.Hour}))
	c.Sync(context.Background())

	probe.set(models.KindWall, false)
	synced := make(chan struct{})
	go func() {
		c.Sync(context.Background())
		close(synced)
	}()
	<-host.removing

	statuses := make(chan []models.LoopStatus, 1)
	go func() { statuses <- c.Statuses() }()
	select {
	case got := <-statuses:
		for _, st := range got {
			if st.Kind == models.KindWall && !st.Running {
				t.Errorf("wall status = %+v, want running until removal completes", st)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("Statuses() blocked while a loop was being removed")
	}

	close(host.release)
	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("Sync() did not return")
	}
	if c.Running(models.KindWall) {
		t.Error("wall loop still running after removal")
	}
}

func TestController_ProbeErrorKeepsState(t *testing.T) {
	probe := &mapProbe{subs: map[models.Kind]bool{models.KindConquer: true}}
	host := newTestHost(t)
	c := NewController(probe, host, time.Hour)
	c.Register(NewTrackerLoop(&fakeReconciler{kind: models.KindConquer}, nil, staticWorlds{}, LoopConfig{Interval: time.Hour}))

	c.Sync(context.Background())
	if !c.Running(models.KindConquer) {
		t.Fatal("conquer loop not started")
	}

	probe.mu.Lock()
	probe.subs[models.KindConquer] = false
	probe.err = errors.New("database is locked")
	probe.mu.Unlock()

	c.Sync(context.Background())
	if !c.Running(models.KindConquer) {
		t.Error("probe failure must not stop a running loop")
	}
}

func TestController_WakeTriggersSync(t *testing.T) {
	probe := &mapProbe{subs: map[models.Kind]bool{}}
	host := newTestHost(t)
	c := NewController(probe, host, time.Hour)
	c.Register(NewTrackerLoop(&fakeReconciler{kind: models.KindOD}, nil, staticWorlds{}, LoopConfig{Interval: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Serve(ctx) }()

	probe.set(models.KindOD, true)
	c.Wake()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Running(models.KindOD) {
		if time.Now().After(deadline) {
			t.Fatal("Wake() did not start the loop")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestController_Statuses(t *testing.T) {
	probe := &mapProbe{subs: map[models.Kind]bool{models.KindWall: true}}
	host := newTestHost(t)
	c := NewController(probe, host, time.Hour)
	c.Register(NewTrackerLoop(&fakeReconciler{kind: models.KindWall}, nil, staticWorlds{}, LoopConfig{Interval: time.Hour}))
	c.Sync(context.Background())

	statuses := c.Statuses()
	if len(statuses) != len(models.AllKinds()) {
		t.Fatalf("Statuses() returned %d kinds", len(statuses))
	}
	for _, st := range statuses {
		switch st.Kind {
		case models.KindWall:
			if !st.Enabled || !st.Running {
				t.Errorf("wall status = %+v", st)
			}
		default:
			if st.Enabled || st.Running {
				t.Errorf("%s status = %+v", st.Kind, st)
			}
		}
	}
}
