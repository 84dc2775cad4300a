// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// SubscriptionStore is the subscription registry.
type SubscriptionStore struct {
	db *DB
}

// Subscriptions returns the subscription registry backed by this database.
func (db *DB) Subscriptions() *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `destination, world, kind, tribe_id, min_magnitude, created_at`

func scanSubscription(s scanner) (models.Subscription, error) {
	var (
		sub     models.Subscription
		kind    string
		created time.Time
	)
	if err := s.Scan(&sub.Destination, &sub.World, &kind, &sub.TribeID, &sub.MinMagnitude, &created); err != nil {
		return sub, err
	}
	sub.Kind = models.Kind(kind)
	sub.CreatedAt = created.UTC()
	return sub, nil
}

func (s *SubscriptionStore) query(ctx context.Context, query string, args ...interface{}) ([]models.Subscription, error) {
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer closeQuietly(rows)

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Add registers a subscription. Adding an existing key only updates its
// min_magnitude and reports added=false.
func (s *SubscriptionStore) Add(ctx context.Context, sub *models.Subscription) (bool, error) {
	added := false
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := tx.QueryRowContext(ctx, `
			SELECT min_magnitude FROM subscriptions
			WHERE destination = ? AND world = ? AND kind = ? AND tribe_id = ?`,
			sub.Destination, sub.World, string(sub.Kind), sub.TribeID).Scan(&existing)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			created := sub.CreatedAt
			if created.IsZero() {
				created = s.db.now()
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO subscriptions (`+subscriptionColumns+`)
				VALUES (?, ?, ?, ?, ?, ?)`,
				sub.Destination, sub.World, string(sub.Kind), sub.TribeID, sub.MinMagnitude, created.UTC()); err != nil {
				return fmt.Errorf("failed to insert subscription: %w", err)
			}
			added = true
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up subscription: %w", err)
		}

		if existing == sub.MinMagnitude {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions SET min_magnitude = ?
			WHERE destination = ? AND world = ? AND kind = ? AND tribe_id = ?`,
			sub.MinMagnitude, sub.Destination, sub.World, string(sub.Kind), sub.TribeID); err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		return nil
	})
	return added, err
}

// Remove deletes a subscription and reports whether it existed.
func (s *SubscriptionStore) Remove(ctx context.Context, key models.SubscriptionKey) (bool, error) {
	result, err := s.db.conn.ExecContext(ctx, `
		DELETE FROM subscriptions
		WHERE destination = ? AND world = ? AND kind = ? AND tribe_id = ?`,
		key.Destination, key.World, string(key.Kind), key.TribeID)
	if err != nil {
		return false, fmt.Errorf("failed to remove subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// ListMatching returns the subscriptions that should receive the event:
// same world and kind, tribe filter wildcard or equal to the old or new
// tribe, and a min_magnitude not above the event's magnitude of interest.
func (s *SubscriptionStore) ListMatching(ctx context.Context, e *models.Event) ([]models.Subscription, error) {
	return s.query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE world = ? AND kind = ?
		  AND (tribe_id = ? OR tribe_id = ? OR tribe_id = ?)
		  AND min_magnitude <= ?
		ORDER BY destination, tribe_id`,
		e.World, string(e.Kind), models.AllTribes, e.OldTribeID, e.NewTribeID, e.MagnitudeOfInterest())
}

// HasAny reports whether any subscription of the kind exists.
func (s *SubscriptionStore) HasAny(ctx context.Context, kind models.Kind) (bool, error) {
	var exists bool
	if err := s.db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE kind = ?)`, string(kind)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check subscriptions for %s: %w", kind, err)
	}
	return exists, nil
}

// HasAnyInWorld reports whether any subscription of the kind exists in the world.
func (s *SubscriptionStore) HasAnyInWorld(ctx context.Context, kind models.Kind, world string) (bool, error) {
	var exists bool
	if err := s.db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE kind = ? AND world = ?)`,
		string(kind), world).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check subscriptions for %s/%s: %w", kind, world, err)
	}
	return exists, nil
}

// Worlds lists the distinct worlds with at least one subscription of the kind.
func (s *SubscriptionStore) Worlds(ctx context.Context, kind models.Kind) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT DISTINCT world FROM subscriptions WHERE kind = ? ORDER BY world`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list worlds for %s: %w", kind, err)
	}
	defer closeQuietly(rows)

	var worlds []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("failed to scan world: %w", err)
		}
		worlds = append(worlds, w)
	}
	return worlds, rows.Err()
}

// List returns every subscription.
func (s *SubscriptionStore) List(ctx context.Context) ([]models.Subscription, error) {
	return s.query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		ORDER BY world, kind, destination, tribe_id`)
}
