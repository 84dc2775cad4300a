// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tribewatch/internal/validation"
)

// minJWTSecretLength is the minimum HS256 secret length accepted.
const minJWTSecretLength = 32

// Validate checks struct tags first, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	return c.validateSecurity()
}

func (c *Config) validateDedup() error {
	switch c.Dedup.Backend {
	case "badger":
		if c.Dedup.Path == "" {
			return fmt.Errorf("DEDUP_PATH is required when DEDUP_BACKEND=badger")
		}
	case "redis":
		if c.Dedup.RedisAddr == "" {
			return fmt.Errorf("DEDUP_REDIS_ADDR is required when DEDUP_BACKEND=redis")
		}
	}
	return nil
}

func (c *Config) validateFeed() error {
	if !strings.Contains(c.Feed.BaseURLTemplate, "{world}") {
		return fmt.Errorf("feed.base_url_template must contain {world}, got %q", c.Feed.BaseURLTemplate)
	}
	if c.Feed.FallbackLookback > c.Feed.MaxLookback {
		return fmt.Errorf("feed.fallback_lookback (%v) must not exceed feed.max_lookback (%v)",
			c.Feed.FallbackLookback, c.Feed.MaxLookback)
	}
	return nil
}

func (c *Config) validateNotify() error {
	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		return fmt.Errorf("notify.timezone %q is not a valid IANA zone: %w", c.Notify.Timezone, err)
	}
	// A claim must outlive one delivery including the pacing wait.
	if c.Dedup.LeaseTTL <= c.Notify.DeliveryTimeout+c.Notify.MinInterval {
		return fmt.Errorf("dedup.lease_ttl (%v) must exceed notify.delivery_timeout + notify.min_interval (%v)",
			c.Dedup.LeaseTTL, c.Notify.DeliveryTimeout+c.Notify.MinInterval)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	return nil
}
