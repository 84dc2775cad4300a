// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package dedup implements the event dedup ledger.
//
// The ledger records which (destination, event key) pairs have been
// delivered. Recording is split into a claim and a confirmation:
//
//	ok, err := ledger.TryRecord(ctx, dest, key) // claim with a lease
//	if ok {
//	    switch deliver() {
//	    case success:  ledger.Confirm(ctx, dest, key) // permanent record
//	    default:       ledger.Release(ctx, dest, key) // allow a retry
//	    }
//	}
//
// A claim whose lease expired without a Confirm (for example after a crash
// between claim and delivery) can be claimed again, so an event is never
// swallowed. A confirmed record is never claimable again.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tribewatch/internal/config"
)

var (
	// ErrClosed is returned by operations on a closed ledger.
	ErrClosed = errors.New("dedup ledger closed")

	// ErrInvalidKey is returned for an empty destination or event key.
	ErrInvalidKey = errors.New("dedup: destination and key must be non-empty")
)

// Ledger is the event dedup store.
type Ledger interface {
	// TryRecord atomically claims (destination, key). It returns false when
	// the pair is confirmed or holds an unexpired claim.
	TryRecord(ctx context.Context, destination, key string) (bool, error)

	// Confirm makes the record permanent.
	Confirm(ctx context.Context, destination, key string) error

	// Release drops an unconfirmed claim held by this ledger.
	Release(ctx context.Context, destination, key string) error

	// Confirmed reports whether (destination, key) has a permanent record.
	Confirmed(ctx context.Context, destination, key string) (bool, error)

	// GC reclaims storage; a no-op for backends that manage their own.
	GC() error

	// Close releases the backend.
	Close() error
}

// record states
const (
	stateClaimed   = "claimed"
	stateConfirmed = "confirmed"
)

// recordKey joins destination and event key. Destinations never contain '|'.
func recordKey(destination, key string) (string, error) {
	if destination == "" || key == "" {
		return "", ErrInvalidKey
	}
	return destination + "|" + key, nil
}

// newHolderID identifies this process as a claim holder.
func newHolderID() string {
	return uuid.New().String()
}

// New opens the ledger backend selected by cfg.Backend.
func New(cfg *config.DedupConfig) (Ledger, error) {
	switch cfg.Backend {
	case "", "badger":
		return OpenBadger(cfg.Path, cfg.LeaseTTL)
	case "redis":
		return OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.KeyPrefix, cfg.LeaseTTL)
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Backend)
	}
}

// defaultLease applies when a zero lease is configured.
const defaultLease = 2 * time.Minute
