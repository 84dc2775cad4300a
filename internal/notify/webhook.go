// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/models"
)

// WebhookSink posts the payload as JSON to a generic HTTP endpoint.
type WebhookSink struct {
	poster httpPoster
}

// NewWebhookSink creates the generic webhook sink.
func NewWebhookSink(timeout time.Duration) *WebhookSink {
	return &WebhookSink{poster: newHTTPPoster(timeout)}
}

// WebhookPayload is the body sent to generic webhooks.
type WebhookPayload struct {
	Destination  string   `json:"destination"`
	Notification *Payload `json:"notification"`
}

// Type implements Sink.
func (s *WebhookSink) Type() models.SinkType { return models.SinkWebhook }

// Deliver implements Sink.
func (s *WebhookSink) Deliver(ctx context.Context, dest *models.Destination, payload *Payload) Result {
	return s.poster.postJSON(ctx, dest.Target, WebhookPayload{Destination: dest.ID, Notification: payload})
}

// Publisher is the subset of the event bus used by BusSink.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// BusSink publishes rendered notifications to a NATS subject. The
// destination target is the subject.
type BusSink struct {
	publisher Publisher
}

// NewBusSink creates the NATS sink.
func NewBusSink(publisher Publisher) *BusSink {
	return &BusSink{publisher: publisher}
}

// Type implements Sink.
func (s *BusSink) Type() models.SinkType { return models.SinkNATS }

// Deliver implements Sink. The message id is derived from destination and
// event key so JetStream drops redelivered duplicates.
func (s *BusSink) Deliver(ctx context.Context, dest *models.Destination, payload *Payload) Result {
	data, err := json.Marshal(payload)
	if err != nil {
		return transportError(fmt.Errorf("failed to marshal payload: %w", err))
	}

	msg := message.NewMessage(dest.ID+"|"+payload.EventKey, data)
	msg.Metadata.Set("destination", dest.ID)
	msg.Metadata.Set("world", payload.World)
	msg.Metadata.Set("kind", string(payload.Kind))

	if err := s.publisher.Publish(ctx, dest.Target, msg); err != nil {
		return transportError(fmt.Errorf("publish to %s: %w", dest.Target, err))
	}
	return success(0)
}

// LogSink writes notifications to the log. It is meant for development.
type LogSink struct{}

// Type implements Sink.
func (LogSink) Type() models.SinkType { return models.SinkLog }

// Deliver implements Sink.
func (LogSink) Deliver(ctx context.Context, dest *models.Destination, payload *Payload) Result {
	logger := logging.Ctx(ctx)
	logger.Info().
		Str("destination", dest.ID).
		Str("event_key", payload.EventKey).
		Str("world", payload.World).
		Str("kind", string(payload.Kind)).
		Str("title", payload.Title).
		Str("description", payload.Description).
		Msg("Notification")
	return success(0)
}
