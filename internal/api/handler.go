// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package api serves the TribeWatch admin API.
//
// The API is the configuration collaborator of the tracker core: it
// registers destinations, adds and removes subscriptions, reports loop
// state and recent journal entries, and streams deliveries over a
// WebSocket. Subscription changes only go through the subscription store;
// the loop controller is woken afterwards and re-reads HasAny itself.
//
// Handler methods are split across files:
//   - handler.go: Handler struct and constructor (this file)
//   - response.go: envelope and decoding helpers
//   - handlers_health.go: /health and /api/v1/loops
//   - handlers_subscriptions.go: subscription registry
//   - handlers_destinations.go: destination registry
//   - handlers_events.go: journal listing
//   - handlers_stream.go: WebSocket stream
package api

import (
	"context"
	"time"

	"github.com/tomtom215/tribewatch/internal/config"
	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/models"
	ws "github.com/tomtom215/tribewatch/internal/websocket"
)

// LoopController is the part of the scheduler the API talks to.
type LoopController interface {
	Statuses() []models.LoopStatus
	Wake()
}

// BusHealth reports whether the NATS bus is usable.
type BusHealth interface {
	Healthy(ctx context.Context) bool
}

// Handler contains dependencies for API handlers.
type Handler struct {
	db        *database.DB
	loops     LoopController
	hub       *ws.Hub
	bus       BusHealth
	security  config.SecurityConfig
	startTime time.Time
}

// NewHandler creates the handler. loops, hub and bus may be nil; the
// corresponding endpoints then degrade instead of failing.
func NewHandler(db *database.DB, loops LoopController, hub *ws.Hub, bus BusHealth, security config.SecurityConfig) *Handler {
	return &Handler{
		db:        db,
		loops:     loops,
		hub:       hub,
		bus:       bus,
		security:  security,
		startTime: time.Now(),
	}
}

// wake nudges the loop controller after a subscription change.
func (h *Handler) wake() {
	if h.loops != nil {
		h.loops.Wake()
	}
}
