// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
	"github.com/tomtom215/tribewatch/internal/validation"
)

// ListDestinations returns every registered destination.
func (h *Handler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	dests, err := h.db.Destinations(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to list destinations", err)
		return
	}
	if dests == nil {
		dests = []models.Destination{}
	}
	respondSuccess(w, http.StatusOK, dests, start)
}

// PutDestination registers or replaces the destination {id}.
func (h *Handler) PutDestination(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	id, ok := destinationID(w, r)
	if !ok {
		return
	}

	var req destinationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	dest := &models.Destination{ID: id, Sink: models.SinkType(req.Sink), Target: strings.TrimSpace(req.Target)}
	if msg := checkTarget(dest); msg != "" {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, msg, nil)
		return
	}

	if err := h.db.PutDestination(ctx, dest); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to store destination", err)
		return
	}
	stored, err := h.db.Destination(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to read destination", err)
		return
	}

	logging.Ctx(ctx).Info().Str("destination", id).Str("sink", req.Sink).Msg("Destination registered")
	respondSuccess(w, http.StatusOK, stored, start)
}

// DeleteDestination removes the destination {id} and its subscriptions.
func (h *Handler) DeleteDestination(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	id, ok := destinationID(w, r)
	if !ok {
		return
	}

	deleted, err := h.db.DeleteDestination(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to delete destination", err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Destination is not registered", nil)
		return
	}
	h.wake()

	logging.Ctx(ctx).Info().Str("destination", id).Msg("Destination deleted")
	respondSuccess(w, http.StatusOK, removalResult{WasActive: true}, start)
}

func destinationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := validation.GetValidator().Var(id, "required,max=64,printascii,excludesall=/?# "); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidation, "Destination id must be 1-64 printable characters without spaces", nil)
		return "", false
	}
	return id, true
}

// checkTarget validates the target against the sink. It returns the
// client-facing message, or "" when the target is acceptable.
func checkTarget(d *models.Destination) string {
	switch d.Sink {
	case models.SinkDiscord, models.SinkWebhook:
		u, err := url.Parse(d.Target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "target must be an http or https URL"
		}
	case models.SinkNATS:
		if !strings.HasPrefix(d.Target, natsSubjectPrefix) || len(d.Target) == len(natsSubjectPrefix) ||
			strings.ContainsAny(d.Target, " *>\t") {
			return "target must be a literal NATS subject under " + natsSubjectPrefix
		}
	case models.SinkLog:
		// Target is an optional label.
	}
	return ""
}
