// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package metrics holds the Prometheus collectors for TribeWatch.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracker cycle metrics
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_cycle_duration_seconds",
			Help:    "Duration of one tracker cycle across all subscribed worlds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_cycles_total",
			Help: "Total number of completed tracker cycles",
		},
		[]string{"kind"},
	)

	WorldErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_world_errors_total",
			Help: "Total number of per-world reconciliation failures",
		},
		[]string{"kind", "stage"}, // stage: reconcile, dispatch
	)

	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_events_detected_total",
			Help: "Total number of events journaled by the reconciler",
		},
		[]string{"kind"},
	)

	BaselineUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_baseline_updates_total",
			Help: "Total number of baseline rows written",
		},
		[]string{"kind"},
	)

	LoopsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_loop_running",
			Help: "Whether the loop for a tracker kind is running (1) or stopped (0)",
		},
		[]string{"kind"},
	)

	// Delivery metrics
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Total number of delivery attempts by result",
		},
		[]string{"kind", "sink", "result"}, // result: success, permission_denied, transport_error
	)

	DedupSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dedup_skips_total",
			Help: "Total number of deliveries skipped because the ledger already holds them",
		},
		[]string{"kind"},
	)

	EventsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_closed_total",
			Help: "Total number of journal entries closed by final status",
		},
		[]string{"kind", "status"}, // status: done, abandoned
	)

	PacingWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notify_pacing_wait_seconds",
			Help:    "Time spent waiting for a destination's rate limit",
			Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// Feed metrics
	FeedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Total number of remote feed requests by outcome",
		},
		[]string{"feed", "outcome"}, // outcome: ok, no_data, error
	)

	FeedMalformedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_malformed_rows_total",
			Help: "Total number of feed rows skipped because they could not be parsed",
		},
		[]string{"feed"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Ledger metrics
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_ledger_operations_total",
			Help: "Total number of dedup ledger operations",
		},
		[]string{"backend", "operation", "result"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Admin API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of live stream clients",
		},
	)
)

// RecordCycle records the completion of one tracker cycle.
func RecordCycle(kind string, duration time.Duration) {
	CyclesTotal.WithLabelValues(kind).Inc()
	CycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordWorldError records a per-world failure at the given stage.
func RecordWorldError(kind, stage string) {
	WorldErrors.WithLabelValues(kind, stage).Inc()
}

// RecordDelivery records one delivery attempt.
func RecordDelivery(kind, sink, result string) {
	Deliveries.WithLabelValues(kind, sink, result).Inc()
}

// RecordLedgerOp records a ledger operation outcome.
func RecordLedgerOp(backend, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LedgerOperations.WithLabelValues(backend, operation, result).Inc()
}

// SetLoopRunning updates the running gauge for a kind.
func SetLoopRunning(kind string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	LoopsRunning.WithLabelValues(kind).Set(v)
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
