// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package config loads TribeWatch configuration with Koanf v2.
//
// Sources are layered in order of increasing priority:
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, config.yaml, /etc/tribewatch/config.yaml)
//  3. Environment variables (LOG_LEVEL, DUCKDB_PATH, DEDUP_BACKEND, ...)
package config

import (
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Dedup     DedupConfig     `koanf:"dedup"`
	Feed      FeedConfig      `koanf:"feed"`
	Trackers  TrackersConfig  `koanf:"trackers"`
	Notify    NotifyConfig    `koanf:"notify"`
	NATS      NATSConfig      `koanf:"nats"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the admin HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DatabaseConfig holds the DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"` // 0 = DuckDB default
}

// DedupConfig selects and configures the delivery ledger.
type DedupConfig struct {
	// Backend is "badger" (embedded, default) or "redis".
	Backend string `koanf:"backend" validate:"oneof=badger redis"`

	// Path is the badger directory.
	Path string `koanf:"path"`

	// LeaseTTL bounds how long an unconfirmed claim blocks other claimants.
	// It must exceed the longest expected delivery including pacing.
	LeaseTTL time.Duration `koanf:"lease_ttl" validate:"gt=0"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	KeyPrefix     string `koanf:"key_prefix"`
}

// FeedConfig configures the remote feed client.
type FeedConfig struct {
	// BaseURLTemplate is the per-world base URL; {world} is replaced.
	BaseURLTemplate string        `koanf:"base_url_template" validate:"required"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	UserAgent       string        `koanf:"user_agent"`

	// FallbackLookback is used as cursor when a world has none yet.
	FallbackLookback time.Duration `koanf:"fallback_lookback" validate:"gt=0"`

	// MaxLookback clamps the cursor to what the feed still serves.
	MaxLookback time.Duration `koanf:"max_lookback" validate:"gt=0"`
}

// TrackerConfig configures one tracker kind loop.
type TrackerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// Cooldown is only used by the kill-score tracker: the minimum time
	// between two accepted increases for the same player and kill type.
	Cooldown time.Duration `koanf:"cooldown" validate:"gte=0"`
}

// MaintenanceConfig configures the daily cleanup loop.
type MaintenanceConfig struct {
	Interval         time.Duration `koanf:"interval" validate:"gt=0"`
	JournalRetention time.Duration `koanf:"journal_retention" validate:"gt=0"`
}

// TrackersConfig holds one section per tracker kind.
type TrackersConfig struct {
	Conquer     TrackerConfig     `koanf:"conquer"`
	ConquerFeed TrackerConfig     `koanf:"conquer_feed"`
	Academy     TrackerConfig     `koanf:"academy"`
	Wall        TrackerConfig     `koanf:"wall"`
	Tower       TrackerConfig     `koanf:"tower"`
	OD          TrackerConfig     `koanf:"od"`
	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// ForKind returns the tracker section for kind.
func (t *TrackersConfig) ForKind(kind models.Kind) TrackerConfig {
	switch kind {
	case models.KindConquer:
		return t.Conquer
	case models.KindConquerFeed:
		return t.ConquerFeed
	case models.KindAcademy:
		return t.Academy
	case models.KindWall:
		return t.Wall
	case models.KindTower:
		return t.Tower
	case models.KindOD:
		return t.OD
	default:
		return TrackerConfig{}
	}
}

// NotifyConfig configures delivery.
type NotifyConfig struct {
	// MinInterval is the minimum spacing between two messages to the same destination.
	MinInterval time.Duration `koanf:"min_interval" validate:"gte=0"`

	// MaxAttempts is the number of dispatch passes before an event is abandoned.
	MaxAttempts int `koanf:"max_attempts" validate:"min=1"`

	DeliveryTimeout time.Duration `koanf:"delivery_timeout" validate:"gt=0"`
	Timezone        string        `koanf:"timezone" validate:"required"`
	Username        string        `koanf:"username"`
	GameHost        string        `koanf:"game_host" validate:"required"` // e.g. tribalwars.nl

	// TagCacheTTL bounds how long rendered tribe tags are reused; 0 disables the cache.
	TagCacheTTL time.Duration `koanf:"tag_cache_ttl" validate:"gte=0"`
}

// NATSConfig configures the NATS bus sink.
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
	MaxStore       int64  `koanf:"max_store" validate:"gte=0"`
}

// SchedulerConfig configures the loop controller and supervisor tree.
type SchedulerConfig struct {
	PollInterval     time.Duration `koanf:"poll_interval" validate:"gt=0"`
	WorldConcurrency int           `koanf:"world_concurrency" validate:"min=1,max=64"`
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// SecurityConfig protects the admin API.
type SecurityConfig struct {
	// JWTSecret enables HS256 bearer authentication when set.
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl" validate:"gt=0"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from all layered sources.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
