// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
)

// SubscriptionProbe reports whether a kind has any subscription.
type SubscriptionProbe interface {
	HasAny(ctx context.Context, kind models.Kind) (bool, error)
}

// ServiceHost is the supervisor the controller adds loops to.
type ServiceHost interface {
	AddTrackerService(svc suture.Service) suture.ServiceToken
	RemoveTrackerService(token suture.ServiceToken) error
}

// Controller starts a kind's loop while subscriptions of that kind exist
// and stops it when the last one is removed.
type Controller struct {
	probe        SubscriptionProbe
	host         ServiceHost
	pollInterval time.Duration
	observers    []Observer
	wake         chan struct{}
	logger       zerolog.Logger

	// syncMu serializes Sync; mu guards loops and tokens.
	syncMu sync.Mutex
	mu     sync.Mutex
	loops  map[models.Kind]*TrackerLoop
	tokens map[models.Kind]suture.ServiceToken
}

// NewController creates a controller polling probe every pollInterval.
func NewController(probe SubscriptionProbe, host ServiceHost, pollInterval time.Duration, observers ...Observer) *Controller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Controller{
		probe:        probe,
		host:         host,
		pollInterval: pollInterval,
		observers:    observers,
		wake:         make(chan struct{}, 1),
		logger:       logging.WithComponent("loop-controller"),
		loops:        make(map[models.Kind]*TrackerLoop),
		tokens:       make(map[models.Kind]suture.ServiceToken),
	}
}

// Register makes a loop available to the controller. Kinds without a
// registered loop are disabled.
func (c *Controller) Register(loop *TrackerLoop) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loops[loop.Kind()] = loop
}

// Wake asks for an immediate re-evaluation, e.g. after a subscription change.
func (c *Controller) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// String names the controller for the supervisor.
func (c *Controller) String() string {
	return "loop-controller"
}

// Serve polls until ctx is canceled.
func (c *Controller) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.Sync(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.wake:
		}
	}
}

// Sync applies the Stopped/Running transition of every registered kind.
// Loops are added and removed without holding c.mu, so status readers do
// not wait for a stopping loop to finish its cycle.
func (c *Controller) Sync(ctx context.Context) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	for _, kind := range c.kinds() {
		wanted, err := c.probe.HasAny(ctx, kind)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to probe subscriptions")
			}
			continue
		}

		c.mu.Lock()
		token, running := c.tokens[kind]
		loop := c.loops[kind]
		c.mu.Unlock()

		switch {
		case wanted && !running:
			token = c.host.AddTrackerService(loop)
			c.mu.Lock()
			c.tokens[kind] = token
			c.mu.Unlock()
			c.logger.Info().Str("kind", string(kind)).Msg("Starting tracker loop")
			c.notify(kind, true)
		case !wanted && running:
			if err := c.host.RemoveTrackerService(token); err != nil {
				c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to stop tracker loop")
				continue
			}
			c.mu.Lock()
			delete(c.tokens, kind)
			c.mu.Unlock()
			c.logger.Info().Str("kind", string(kind)).Msg("Stopped tracker loop, no subscriptions left")
			c.notify(kind, false)
		}
	}
}

func (c *Controller) kinds() []models.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]models.Kind, 0, len(c.loops))
	for kind := range c.loops {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (c *Controller) notify(kind models.Kind, running bool) {
	for _, o := range c.observers {
		o.OnLoopState(kind, running)
	}
}

// Running reports whether the loop of kind is running.
func (c *Controller) Running(kind models.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tokens[kind]
	return ok
}

// Statuses reports every tracker kind in canonical order.
func (c *Controller) Statuses() []models.LoopStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := models.AllKinds()
	out := make([]models.LoopStatus, 0, len(kinds))
	for _, kind := range kinds {
		st := models.LoopStatus{Kind: kind}
		if loop, ok := c.loops[kind]; ok {
			st.Enabled = true
			st.LastRun = loop.LastCycle().FinishedAt
		}
		_, st.Running = c.tokens[kind]
		out = append(out, st)
	}
	return out
}
