// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tribewatch/internal/logging"
)

// Bus is the lifecycle of the NATS bus.
type Bus interface {
	Healthy(ctx context.Context) bool
	Close(ctx context.Context) error
}

// BusService keeps the bus open for the lifetime of the tree and closes it
// on shutdown. The bus is opened before the tree starts so that sinks can
// hold its publisher.
type BusService struct {
	bus             Bus
	shutdownTimeout time.Duration
	checkInterval   time.Duration
	name            string
}

// NewBusService wraps bus.
func NewBusService(bus Bus, shutdownTimeout time.Duration) *BusService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &BusService{
		bus:             bus,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   30 * time.Second,
		name:            "nats-bus",
	}
}

// Serve logs health transitions until ctx is canceled, then closes the bus.
func (s *BusService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.bus.Close(shutdownCtx); err != nil {
				return fmt.Errorf("nats bus close failed: %w", err)
			}
			return ctx.Err()

		case <-ticker.C:
			now := s.bus.Healthy(ctx)
			switch {
			case healthy && !now:
				logging.Warn().Msg("NATS bus unhealthy, deliveries to nats destinations will fail")
			case !healthy && now:
				logging.Info().Msg("NATS bus recovered")
			}
			healthy = now
		}
	}
}

// String names the service for the supervisor.
func (s *BusService) String() string {
	return s.name
}
