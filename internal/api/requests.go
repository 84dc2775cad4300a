// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import "github.com/tomtom215/tribewatch/internal/models"

// wildcardTag selects every tribe.
const wildcardTag = "alltribes"

// natsSubjectPrefix is required of every nats destination target.
const natsSubjectPrefix = "tribewatch."

// subscriptionRequest is the body of POST and DELETE /api/v1/subscriptions.
// The tribe is given either as a tag, resolved against the world's
// snapshot, or as a raw ID; neither means every tribe.
type subscriptionRequest struct {
	Destination  string `json:"destination" validate:"required,max=64"`
	World        string `json:"world" validate:"required,world"`
	Kind         string `json:"kind" validate:"required,tracker"`
	TribeTag     string `json:"tribe_tag" validate:"omitempty,max=32"`
	TribeID      *int64 `json:"tribe_id" validate:"omitempty,gte=0"`
	MinMagnitude int64  `json:"min_magnitude" validate:"gte=0"`
}

// destinationRequest is the body of PUT /api/v1/destinations/{id}.
type destinationRequest struct {
	Sink   string `json:"sink" validate:"required,sink"`
	Target string `json:"target" validate:"max=512"`
}

// subscriptionResult answers an add.
type subscriptionResult struct {
	Added        bool                `json:"added"`
	Subscription models.Subscription `json:"subscription"`
}

// removalResult answers a subscription removal.
type removalResult struct {
	WasActive bool `json:"was_active"`
}

// eventsQuery holds the parsed query of GET /api/v1/events.
type eventsQuery struct {
	World  string `validate:"omitempty,world"`
	Kind   string `validate:"omitempty,tracker"`
	Status string `validate:"omitempty,oneof=pending done abandoned"`
	Limit  int    `validate:"gte=1,lte=500"`
}
