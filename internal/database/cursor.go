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

// Cursor returns the stored feed cursor for (world, kind). ok is false when none is stored.
func (db *DB) Cursor(ctx context.Context, world string, kind models.Kind) (since int64, ok bool, err error) {
	err = db.conn.QueryRowContext(ctx, `
		SELECT last_since FROM feed_cursors WHERE world = ? AND kind = ?`,
		world, string(kind)).Scan(&since)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cursor %s/%s: %w", world, kind, err)
	}
	return since, true, nil
}

// SetCursor stores since unless the stored cursor is already later.
func (db *DB) SetCursor(ctx context.Context, world string, kind models.Kind, since int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return advanceCursor(ctx, tx, world, kind, since, db.now())
	})
}

// advanceCursor never moves a cursor backwards.
func advanceCursor(ctx context.Context, tx *sql.Tx, world string, kind models.Kind, since int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO feed_cursors (world, kind, last_since, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (world, kind) DO UPDATE SET
			last_since = GREATEST(feed_cursors.last_since, EXCLUDED.last_since),
			updated_at = EXCLUDED.updated_at`,
		world, string(kind), since, now)
	if err != nil {
		return fmt.Errorf("failed to advance cursor %s/%s: %w", world, kind, err)
	}
	return nil
}
