// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package eventprocessor

import (
	"time"

	"github.com/tomtom215/tribewatch/internal/config"
)

// SubjectPrefix is the root of every subject the notification stream captures.
// Bus destinations must publish below it, e.g. "tribewatch.nl90.conquer".
const SubjectPrefix = "tribewatch"

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int // -1 picks a random free port
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 << 20, // 256MB
		JetStreamMaxStore: 1 << 30,   // 1GB
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// StreamConfig defines the notification stream.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns the notification stream configuration.
// The duplicate window covers a dispatcher retry of the same delivery.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "TRIBEWATCH",
		Subjects:        []string{SubjectPrefix + ".>"},
		MaxAge:          7 * 24 * time.Hour,
		MaxBytes:        1 << 30,
		MaxMsgs:         -1,
		DuplicateWindow: 10 * time.Minute,
		Replicas:        1,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Settings bundles the derived configuration of one bus.
type Settings struct {
	Embedded  bool
	Server    ServerConfig
	Publisher PublisherConfig
	Stream    StreamConfig
	Breaker   CircuitBreakerConfig
}

// SettingsFrom derives bus settings from the application configuration.
func SettingsFrom(cfg *config.NATSConfig) Settings {
	s := Settings{
		Embedded:  cfg.EmbeddedServer,
		Server:    DefaultServerConfig(),
		Publisher: DefaultPublisherConfig(cfg.URL),
		Stream:    DefaultStreamConfig(),
		Breaker:   DefaultCircuitBreakerConfig("nats-publisher"),
	}
	if cfg.StoreDir != "" {
		s.Server.StoreDir = cfg.StoreDir
	}
	if cfg.MaxStore > 0 {
		s.Server.JetStreamMaxStore = cfg.MaxStore
		s.Stream.MaxBytes = cfg.MaxStore
	}
	if cfg.StreamName != "" {
		s.Stream.Name = cfg.StreamName
	}
	return s
}
