// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// deleteBatchSize bounds the IN list of a single DELETE.
const deleteBatchSize = 500

// BaselineStore holds the last observed state per (world, scope, entity).
type BaselineStore struct {
	db *DB
}

// Baselines returns the baseline store backed by this database.
func (db *DB) Baselines() *BaselineStore {
	return &BaselineStore{db: db}
}

// GetAll returns every baseline row of a world and scope keyed by entity id.
func (s *BaselineStore) GetAll(ctx context.Context, world, scope string) (map[int64]models.BaselineState, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT entity_id, owner_id, tribe_id, magnitude, changed_at
		FROM baselines
		WHERE world = ? AND scope = ?`, world, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to read baselines for %s/%s: %w", world, scope, err)
	}
	defer closeQuietly(rows)

	states := make(map[int64]models.BaselineState)
	for rows.Next() {
		var (
			id        int64
			state     models.BaselineState
			changedAt sql.NullTime
		)
		if err := rows.Scan(&id, &state.OwnerID, &state.TribeID, &state.Magnitude, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		if changedAt.Valid {
			state.ChangedAt = changedAt.Time.UTC()
		}
		states[id] = state
	}
	return states, rows.Err()
}

// UpsertMany writes every state in one transaction.
func (s *BaselineStore) UpsertMany(ctx context.Context, world, scope string, states map[int64]models.BaselineState) error {
	if len(states) == 0 {
		return nil
	}
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		return upsertBaselines(ctx, tx, world, scope, states, s.db.now())
	})
}

// HasAny reports whether a world has any baseline row in the scope.
func (s *BaselineStore) HasAny(ctx context.Context, world, scope string) (bool, error) {
	var exists bool
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM baselines WHERE world = ? AND scope = ?)`,
		world, scope).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check baselines for %s/%s: %w", world, scope, err)
	}
	return exists, nil
}

// Worlds lists the worlds holding baseline rows in a scope.
func (s *BaselineStore) Worlds(ctx context.Context, scope string) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT DISTINCT world FROM baselines WHERE scope = ? ORDER BY world`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list baseline worlds: %w", err)
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

// DeleteMissing removes the rows of a scope whose entity is not in keep.
func (s *BaselineStore) DeleteMissing(ctx context.Context, world, scope string, keep map[int64]struct{}) (int, error) {
	current, err := s.GetAll(ctx, world, scope)
	if err != nil {
		return 0, err
	}

	stale := make([]int64, 0)
	for id := range current {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(stale); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(stale))
			batch := stale[start:end]

			placeholders := make([]string, len(batch))
			args := make([]interface{}, 0, len(batch)+2)
			args = append(args, world, scope)
			for i, id := range batch {
				placeholders[i] = "?"
				args = append(args, id)
			}

			//nolint:gosec // only placeholders are interpolated
			query := fmt.Sprintf(`DELETE FROM baselines WHERE world = ? AND scope = ? AND entity_id IN (%s)`,
				strings.Join(placeholders, ","))
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to delete stale baselines: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

func upsertBaselines(ctx context.Context, tx *sql.Tx, world, scope string, states map[int64]models.BaselineState, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO baselines (world, scope, entity_id, owner_id, tribe_id, magnitude, changed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (world, scope, entity_id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			tribe_id = EXCLUDED.tribe_id,
			magnitude = EXCLUDED.magnitude,
			changed_at = EXCLUDED.changed_at,
			updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare baseline upsert: %w", err)
	}
	defer closeQuietly(stmt)

	for id, state := range states {
		var changedAt interface{}
		if !state.ChangedAt.IsZero() {
			changedAt = state.ChangedAt.UTC()
		}
		if _, err := stmt.ExecContext(ctx, world, scope, id,
			state.OwnerID, state.TribeID, state.Magnitude, changedAt, now); err != nil {
			return fmt.Errorf("failed to upsert baseline %s/%s/%d: %w", world, scope, id, err)
		}
	}
	return nil
}
