// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
)

// Health reports liveness, store connectivity and loop states. It answers
// 503 when the database is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	health := models.HealthStatus{
		Status:            "healthy",
		DatabaseConnected: h.db != nil && h.db.Ping(ctx) == nil,
		Loops:             h.loopStatuses(ctx),
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if h.hub != nil {
		health.StreamClients = h.hub.GetClientCount()
	}
	if h.bus != nil {
		connected := h.bus.Healthy(ctx)
		health.BusConnected = &connected
		if !connected {
			health.Status = "degraded"
		}
	}

	status := http.StatusOK
	if !health.DatabaseConnected {
		health.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	respondSuccess(w, status, health, start)
}

// Loops lists every tracker kind with its running state and subscribed worlds.
func (h *Handler) Loops(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, h.loopStatuses(r.Context()), start)
}

func (h *Handler) loopStatuses(ctx context.Context) []models.LoopStatus {
	var statuses []models.LoopStatus
	if h.loops != nil {
		statuses = h.loops.Statuses()
	} else {
		for _, kind := range models.AllKinds() {
			statuses = append(statuses, models.LoopStatus{Kind: kind})
		}
	}
	if h.db == nil {
		return statuses
	}

	subs := h.db.Subscriptions()
	for i := range statuses {
		worlds, err := subs.Worlds(ctx, statuses[i].Kind)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("kind", string(statuses[i].Kind)).Msg("Failed to list subscribed worlds")
			continue
		}
		statuses[i].Worlds = worlds
	}
	return statuses
}
