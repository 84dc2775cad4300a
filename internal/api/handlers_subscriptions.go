// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
)

// errUnknownTribe is returned when a tribe tag is not in the world's snapshot.
var errUnknownTribe = errors.New("unknown tribe tag")

// ListSubscriptions returns every subscription.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	subs, err := h.db.Subscriptions().List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to list subscriptions", err)
		return
	}
	if subs == nil {
		subs = []models.Subscription{}
	}
	respondSuccess(w, http.StatusOK, subs, start)
}

// AddSubscription registers a subscription. Adding an existing one is a
// no-op apart from updating min_magnitude, and answers 200 instead of 201.
func (h *Handler) AddSubscription(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req subscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.db.Destination(ctx, req.Destination); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Destination is not registered", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to look up destination", err)
		return
	}

	sub, ok := h.subscriptionFromRequest(w, r, &req)
	if !ok {
		return
	}
	sub.MinMagnitude = req.MinMagnitude

	added, err := h.db.Subscriptions().Add(ctx, sub)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to add subscription", err)
		return
	}
	h.wake()

	logging.Ctx(ctx).Info().
		Str("destination", sub.Destination).
		Str("world", sub.World).
		Str("kind", string(sub.Kind)).
		Int64("tribe_id", sub.TribeID).
		Bool("added", added).
		Msg("Subscription added")

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	respondSuccess(w, status, subscriptionResult{Added: added, Subscription: *sub}, start)
}

// RemoveSubscription deletes a subscription. Removing one that does not
// exist is not an error; was_active reports the difference.
func (h *Handler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req subscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, ok := h.subscriptionFromRequest(w, r, &req)
	if !ok {
		return
	}

	wasActive, err := h.db.Subscriptions().Remove(ctx, sub.Key())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to remove subscription", err)
		return
	}
	if wasActive {
		h.wake()
		logging.Ctx(ctx).Info().
			Str("destination", sub.Destination).
			Str("world", sub.World).
			Str("kind", string(sub.Kind)).
			Int64("tribe_id", sub.TribeID).
			Msg("Subscription removed")
	}
	respondSuccess(w, http.StatusOK, removalResult{WasActive: wasActive}, start)
}

// subscriptionFromRequest resolves the tribe filter and builds the
// subscription. It writes the error response on failure.
func (h *Handler) subscriptionFromRequest(w http.ResponseWriter, r *http.Request, req *subscriptionRequest) (*models.Subscription, bool) {
	if req.TribeID != nil && req.TribeTag != "" {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "tribe_tag and tribe_id are mutually exclusive", nil)
		return nil, false
	}

	tribeID, err := h.resolveTribe(r.Context(), req)
	switch {
	case errors.Is(err, errUnknownTribe):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown tribe tag in world "+req.World, nil)
		return nil, false
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to resolve tribe", err)
		return nil, false
	}

	return &models.Subscription{
		Destination: req.Destination,
		World:       req.World,
		Kind:        models.Kind(req.Kind),
		TribeID:     tribeID,
	}, true
}

// resolveTribe maps the request's tribe filter to a tribe ID. Tags match
// exactly; an empty tag or "alltribes" is the wildcard.
func (h *Handler) resolveTribe(ctx context.Context, req *subscriptionRequest) (int64, error) {
	if req.TribeID != nil {
		return *req.TribeID, nil
	}
	if req.TribeTag == "" || strings.EqualFold(req.TribeTag, wildcardTag) {
		return models.AllTribes, nil
	}

	tribe, err := h.db.TribeByTag(ctx, req.World, req.TribeTag)
	if errors.Is(err, database.ErrNotFound) {
		return 0, errUnknownTribe
	}
	if err != nil {
		return 0, err
	}
	return tribe.ID, nil
}
