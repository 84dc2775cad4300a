// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/models"
	"github.com/tomtom215/tribewatch/internal/validation"
)

const defaultEventsLimit = 50

// Events lists recent journal entries, newest first, filtered by the
// optional world, kind and status query parameters.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	query := eventsQuery{
		World:  q.Get("world"),
		Kind:   q.Get("kind"),
		Status: q.Get("status"),
		Limit:  defaultEventsLimit,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer", nil)
			return
		}
		query.Limit = n
	}
	if verr := validation.ValidateStruct(&query); verr != nil {
		respondAPIError(w, http.StatusBadRequest, verr.ToAPIError())
		return
	}

	entries, err := h.db.RecentEvents(r.Context(), database.EventFilter{
		World:  query.World,
		Kind:   models.Kind(query.Kind),
		Status: models.EventStatus(query.Status),
		Limit:  query.Limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to list events", err)
		return
	}
	if entries == nil {
		entries = []models.JournalEntry{}
	}
	respondSuccess(w, http.StatusOK, entries, start)
}
