// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"context"
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// DiscordSink posts embeds to Discord webhooks.
type DiscordSink struct {
	poster   httpPoster
	username string
}

// NewDiscordSink creates the Discord webhook sink.
func NewDiscordSink(timeout time.Duration, username string) *DiscordSink {
	return &DiscordSink{poster: newHTTPPoster(timeout), username: username}
}

// DiscordWebhookPayload is the Discord webhook message structure.
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is a Discord embed object.
type DiscordEmbed struct {
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Color       int                    `json:"color,omitempty"`
	Fields      []DiscordEmbedField    `json:"fields,omitempty"`
	Thumbnail   *DiscordEmbedThumbnail `json:"thumbnail,omitempty"`
	Footer      *DiscordEmbedFooter    `json:"footer,omitempty"`
}

// DiscordEmbedField is a field in a Discord embed.
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedThumbnail is the thumbnail of a Discord embed.
type DiscordEmbedThumbnail struct {
	URL string `json:"url"`
}

// DiscordEmbedFooter is the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Type implements Sink.
func (s *DiscordSink) Type() models.SinkType { return models.SinkDiscord }

// Deliver implements Sink.
func (s *DiscordSink) Deliver(ctx context.Context, dest *models.Destination, payload *Payload) Result {
	return s.poster.postJSON(ctx, dest.Target, s.buildPayload(payload))
}

func (s *DiscordSink) buildPayload(p *Payload) DiscordWebhookPayload {
	embed := DiscordEmbed{
		Title:       p.Title,
		Description: p.Description,
		Color:       p.Color,
	}
	for _, f := range p.Fields {
		embed.Fields = append(embed.Fields, DiscordEmbedField(f))
	}
	if p.ThumbnailURL != "" {
		embed.Thumbnail = &DiscordEmbedThumbnail{URL: p.ThumbnailURL}
	}
	if p.Footer != "" {
		embed.Footer = &DiscordEmbedFooter{Text: p.Footer}
	}
	return DiscordWebhookPayload{Username: s.username, Embeds: []DiscordEmbed{embed}}
}
