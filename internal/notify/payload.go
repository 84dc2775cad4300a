// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// Embed colors, matching the chat client's palette.
const (
	ColorDefault = 0x000000
	ColorGreen   = 0x2ECC71
	ColorYellow  = 0xF1C40F
	ColorRed     = 0xE74C3C
	ColorBlue    = 0x3498DB
)

// Field is one name/value pair of a rendered notification.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Payload is a destination-agnostic rendered notification. Sinks translate
// it into their own wire format.
type Payload struct {
	EventKey     string      `json:"event_key"`
	World        string      `json:"world"`
	Kind         models.Kind `json:"kind"`
	Title        string      `json:"title,omitempty"`
	Description  string      `json:"description,omitempty"`
	Color        int         `json:"color"`
	Fields       []Field     `json:"fields,omitempty"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	Footer       string      `json:"footer,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (p *Payload) addField(name, value string, inline bool) {
	p.Fields = append(p.Fields, Field{Name: name, Value: value, Inline: inline})
}
