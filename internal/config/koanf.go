// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tribewatch/config.yaml",
	"/etc/tribewatch/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all defaults applied.
// Tracker periods follow the in-game cadence: conquers every 30s, the conquer
// feed every minute, point-based detectors every 5 minutes.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8380,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/tribewatch.duckdb",
			MaxMemory: "1GB",
		},
		Dedup: DedupConfig{
			Backend:   "badger",
			Path:      "/data/ledger",
			LeaseTTL:  2 * time.Minute,
			RedisAddr: "127.0.0.1:6379",
			KeyPrefix: "tribewatch:dedup:",
		},
		Feed: FeedConfig{
			BaseURLTemplate:  "https://{world}.tribalwars.nl",
			Timeout:          20 * time.Second,
			UserAgent:        "TribeWatch/1.0",
			FallbackLookback: time.Hour,
			MaxLookback:      84600 * time.Second,
		},
		Trackers: TrackersConfig{
			Conquer:     TrackerConfig{Enabled: true, Interval: 30 * time.Second},
			ConquerFeed: TrackerConfig{Enabled: true, Interval: time.Minute},
			Academy:     TrackerConfig{Enabled: true, Interval: 5 * time.Minute},
			Wall:        TrackerConfig{Enabled: true, Interval: 5 * time.Minute},
			Tower:       TrackerConfig{Enabled: true, Interval: 5 * time.Minute},
			OD:          TrackerConfig{Enabled: true, Interval: 5 * time.Minute, Cooldown: time.Hour},
			Maintenance: MaintenanceConfig{
				Interval:         24 * time.Hour,
				JournalRetention: 7 * 24 * time.Hour,
			},
		},
		Notify: NotifyConfig{
			MinInterval:     time.Second,
			MaxAttempts:     5,
			DeliveryTimeout: 10 * time.Second,
			Timezone:        "Europe/Amsterdam",
			Username:        "TribeWatch",
			GameHost:        "tribalwars.nl",
			TagCacheTTL:     10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "TRIBEWATCH",
			MaxStore:       1 << 30,
		},
		Scheduler: SchedulerConfig{
			PollInterval:     5 * time.Second,
			WorldConcurrency: 4,
			FailureThreshold: 5,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Security: SecurityConfig{
			TokenTTL:        24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DUCKDB_PATH -> database.path, CONQUER_INTERVAL -> trackers.conquer.interval
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are comma-separated lists in env vars.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Dedup ledger
	"dedup_backend":        "dedup.backend",
	"dedup_path":           "dedup.path",
	"dedup_lease_ttl":      "dedup.lease_ttl",
	"dedup_redis_addr":     "dedup.redis_addr",
	"dedup_redis_password": "dedup.redis_password",
	"dedup_redis_db":       "dedup.redis_db",

	// Feed
	"feed_base_url_template": "feed.base_url_template",
	"feed_timeout":           "feed.timeout",
	"feed_user_agent":        "feed.user_agent",

	// Trackers
	"conquer_enabled":        "trackers.conquer.enabled",
	"conquer_interval":       "trackers.conquer.interval",
	"conquer_feed_enabled":   "trackers.conquer_feed.enabled",
	"conquer_feed_interval":  "trackers.conquer_feed.interval",
	"academy_enabled":        "trackers.academy.enabled",
	"academy_interval":       "trackers.academy.interval",
	"wall_enabled":           "trackers.wall.enabled",
	"wall_interval":          "trackers.wall.interval",
	"tower_enabled":          "trackers.tower.enabled",
	"tower_interval":         "trackers.tower.interval",
	"od_enabled":             "trackers.od.enabled",
	"od_interval":            "trackers.od.interval",
	"od_cooldown":            "trackers.od.cooldown",
	"maintenance_interval":   "trackers.maintenance.interval",
	"journal_retention":      "trackers.maintenance.journal_retention",
	"notify_min_interval":    "notify.min_interval",
	"notify_max_attempts":    "notify.max_attempts",
	"notify_timeout":         "notify.delivery_timeout",
	"notify_timezone":        "notify.timezone",
	"notify_username":        "notify.username",
	"game_host":              "notify.game_host",
	"tag_cache_ttl":          "notify.tag_cache_ttl",
	"scheduler_poll":         "scheduler.poll_interval",
	"world_concurrency":      "scheduler.world_concurrency",
	"supervisor_backoff":     "scheduler.failure_backoff",
	"supervisor_shutdown":    "scheduler.shutdown_timeout",
	"supervisor_failure_max": "scheduler.failure_threshold",

	// NATS
	"nats_enabled":   "nats.enabled",
	"nats_url":       "nats.url",
	"nats_embedded":  "nats.embedded_server",
	"nats_store_dir": "nats.store_dir",
	"nats_stream":    "nats.stream_name",
	"nats_max_store": "nats.max_store",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"token_ttl":           "security.token_ttl",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" so unrelated environment does not leak into config.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
