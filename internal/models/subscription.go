// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package models

import (
	"fmt"
	"time"
)

// AllTribes is the tribe filter value that matches every tribe.
const AllTribes int64 = 0

// Subscription is an active watch of one destination on one world and
// tracker kind.
type Subscription struct {
	Destination  string    `json:"destination"`
	World        string    `json:"world"`
	Kind         Kind      `json:"kind"`
	TribeID      int64     `json:"tribe_id"`      // AllTribes (0) matches every tribe
	MinMagnitude int64     `json:"min_magnitude"` // floor on Event.MagnitudeOfInterest
	CreatedAt    time.Time `json:"created_at"`
}

// SubscriptionKey identifies a subscription for add/remove.
type SubscriptionKey struct {
	Destination string `json:"destination"`
	World       string `json:"world"`
	Kind        Kind   `json:"kind"`
	TribeID     int64  `json:"tribe_id"`
}

// Key returns the identifying part of the subscription.
func (s *Subscription) Key() SubscriptionKey {
	return SubscriptionKey{
		Destination: s.Destination,
		World:       s.World,
		Kind:        s.Kind,
		TribeID:     s.TribeID,
	}
}

// FilterKey returns the filter part of the uniqueness key.
func (s *Subscription) FilterKey() string {
	if s.TribeID == AllTribes {
		return "tribe:all"
	}
	return fmt.Sprintf("tribe:%d", s.TribeID)
}

// Matches reports whether the subscription wants to hear about e.
func (s *Subscription) Matches(e *Event) bool {
	if s.World != e.World || s.Kind != e.Kind {
		return false
	}
	if s.TribeID != AllTribes && !e.InvolvesTribe(s.TribeID) {
		return false
	}
	return e.MagnitudeOfInterest() >= s.MinMagnitude
}

// SinkType selects how a destination receives notifications.
type SinkType string

const (
	SinkDiscord SinkType = "discord"
	SinkWebhook SinkType = "webhook"
	SinkNATS    SinkType = "nats"
	SinkLog     SinkType = "log"
)

// Destination is a registered notification target.
type Destination struct {
	ID        string    `json:"id"`
	Sink      SinkType  `json:"sink"`
	Target    string    `json:"target"` // webhook URL or NATS subject
	CreatedAt time.Time `json:"created_at"`
}
