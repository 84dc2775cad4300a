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

// PutDestination registers or replaces a destination.
func (db *DB) PutDestination(ctx context.Context, d *models.Destination) error {
	created := d.CreatedAt
	if created.IsZero() {
		created = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO destinations (id, sink, target, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sink = EXCLUDED.sink,
			target = EXCLUDED.target`,
		d.ID, string(d.Sink), d.Target, created.UTC())
	if err != nil {
		return fmt.Errorf("failed to store destination %s: %w", d.ID, err)
	}
	return nil
}

func scanDestination(s scanner) (models.Destination, error) {
	var (
		d       models.Destination
		sink    string
		created time.Time
	)
	if err := s.Scan(&d.ID, &sink, &d.Target, &created); err != nil {
		return d, err
	}
	d.Sink = models.SinkType(sink)
	d.CreatedAt = created.UTC()
	return d, nil
}

// Destination returns one destination or ErrNotFound.
func (db *DB) Destination(ctx context.Context, id string) (*models.Destination, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, sink, target, created_at FROM destinations WHERE id = ?`, id)
	d, err := scanDestination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get destination %s: %w", id, err)
	}
	return &d, nil
}

// Destinations lists every registered destination.
func (db *DB) Destinations(ctx context.Context) ([]models.Destination, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, sink, target, created_at FROM destinations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list destinations: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDestination removes a destination and all of its subscriptions.
func (db *DB) DeleteDestination(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE destination = ?`, id); err != nil {
			return fmt.Errorf("failed to delete subscriptions of %s: %w", id, err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM destinations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete destination %s: %w", id, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			deleted = n > 0
		}
		return nil
	})
	return deleted, err
}
