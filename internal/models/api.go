// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package models

import "time"

// APIResponse is the envelope for every admin API response.
//
// Status is "success" with Data populated, or "error" with Error populated.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the error body returned by the admin API.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// LoopStatus reports whether the loop for one tracker kind is running.
type LoopStatus struct {
	Kind    Kind      `json:"kind"`
	Enabled bool      `json:"enabled"`
	Running bool      `json:"running"`
	Worlds  []string  `json:"worlds"`
	LastRun time.Time `json:"last_run,omitempty"`
}

// Delivery is published to stream observers after a successful send.
type Delivery struct {
	Destination string    `json:"destination"`
	Sink        SinkType  `json:"sink"`
	Event       Event     `json:"event"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// CycleReport summarizes one tracker cycle across all subscribed worlds.
type CycleReport struct {
	Kind       Kind      `json:"kind"`
	Worlds     int       `json:"worlds"`
	Failed     int       `json:"failed"`
	Journaled  int       `json:"journaled"`
	Delivered  int       `json:"delivered"`
	Abandoned  int       `json:"abandoned"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status            string       `json:"status"`
	DatabaseConnected bool         `json:"database_connected"`
	BusConnected      *bool        `json:"bus_connected,omitempty"`
	StreamClients     int          `json:"stream_clients"`
	Loops             []LoopStatus `json:"loops"`
	Uptime            float64      `json:"uptime_seconds"`
}
