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
	"strings"

	"github.com/tomtom215/tribewatch/internal/models"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVillage(s scanner, world string) (models.Village, error) {
	v := models.Village{World: world}
	err := s.Scan(&v.ID, &v.Name, &v.X, &v.Y, &v.PlayerID, &v.TribeID, &v.Points)
	return v, err
}

// ListEntities returns every village of a world ordered by village id.
func (db *DB) ListEntities(ctx context.Context, world string) ([]models.Village, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT village_id, name, x, y, player_id, tribe_id, points
		FROM villages
		WHERE world = ?
		ORDER BY village_id`, world)
	if err != nil {
		return nil, fmt.Errorf("failed to list villages for %s: %w", world, err)
	}
	defer closeQuietly(rows)

	var villages []models.Village
	for rows.Next() {
		v, err := scanVillage(rows, world)
		if err != nil {
			return nil, fmt.Errorf("failed to scan village: %w", err)
		}
		villages = append(villages, v)
	}
	return villages, rows.Err()
}

// Village returns one village or ErrNotFound.
func (db *DB) Village(ctx context.Context, world string, id int64) (*models.Village, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT village_id, name, x, y, player_id, tribe_id, points
		FROM villages
		WHERE world = ? AND village_id = ?
		LIMIT 1`, world, id)

	v, err := scanVillage(row, world)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get village %d: %w", id, err)
	}
	return &v, nil
}

// Player returns one player or ErrNotFound.
func (db *DB) Player(ctx context.Context, world string, id int64) (*models.Player, error) {
	p := models.Player{World: world}
	err := db.conn.QueryRowContext(ctx, `
		SELECT player_id, name, tribe_id, villages, points
		FROM players
		WHERE world = ? AND player_id = ?
		LIMIT 1`, world, id).Scan(&p.ID, &p.Name, &p.TribeID, &p.Villages, &p.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player %d: %w", id, err)
	}
	return &p, nil
}

// PlayerName returns the player's name or ErrNotFound.
func (db *DB) PlayerName(ctx context.Context, world string, id int64) (string, error) {
	p, err := db.Player(ctx, world, id)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// TribeTag returns the tag of a tribe or ErrNotFound.
func (db *DB) TribeTag(ctx context.Context, world string, id int64) (string, error) {
	var tag string
	err := db.conn.QueryRowContext(ctx, `
		SELECT tag FROM tribes WHERE world = ? AND tribe_id = ? LIMIT 1`, world, id).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tribe %d: %w", id, err)
	}
	return tag, nil
}

// TribeByTag resolves a tribe by its exact tag.
func (db *DB) TribeByTag(ctx context.Context, world, tag string) (*models.Tribe, error) {
	t := models.Tribe{World: world}
	err := db.conn.QueryRowContext(ctx, `
		SELECT tribe_id, name, tag FROM tribes WHERE world = ? AND tag = ? LIMIT 1`,
		world, tag).Scan(&t.ID, &t.Name, &t.Tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tribe %q: %w", tag, err)
	}
	return &t, nil
}

// PlayerIDs returns the set of player ids present in the world snapshot.
func (db *DB) PlayerIDs(ctx context.Context, world string) (map[int64]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT player_id FROM players WHERE world = ?`, world)
	if err != nil {
		return nil, fmt.Errorf("failed to list players for %s: %w", world, err)
	}
	defer closeQuietly(rows)

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan player id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// TribeMembership maps every player of a world to its tribe.
func (db *DB) TribeMembership(ctx context.Context, world string) (map[int64]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT player_id, tribe_id FROM players WHERE world = ?`, world)
	if err != nil {
		return nil, fmt.Errorf("failed to list tribe membership for %s: %w", world, err)
	}
	defer closeQuietly(rows)

	tribes := make(map[int64]int64)
	for rows.Next() {
		var playerID, tribeID int64
		if err := rows.Scan(&playerID, &tribeID); err != nil {
			return nil, fmt.Errorf("failed to scan tribe membership: %w", err)
		}
		tribes[playerID] = tribeID
	}
	return tribes, rows.Err()
}

// PlayerTribes returns the current tribe of every requested player that exists.
func (db *DB) PlayerTribes(ctx context.Context, world string, ids []int64) (map[int64]int64, error) {
	tribes := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return tribes, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, world)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	//nolint:gosec // only placeholders are interpolated
	query := fmt.Sprintf(`SELECT player_id, tribe_id FROM players WHERE world = ? AND player_id IN (%s)`,
		strings.Join(placeholders, ","))
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve player tribes: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var playerID, tribeID int64
		if err := rows.Scan(&playerID, &tribeID); err != nil {
			return nil, fmt.Errorf("failed to scan player tribe: %w", err)
		}
		tribes[playerID] = tribeID
	}
	return tribes, rows.Err()
}

// ReplaceSnapshot swaps a world's villages, players and tribes in one transaction.
// It is the ingestion boundary; the engine never calls it.
func (db *DB) ReplaceSnapshot(ctx context.Context, world string, snap *models.Snapshot) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"villages", "players", "tribes"} {
			//nolint:gosec // table names are constants
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE world = ?", world); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		villageStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO villages (world, village_id, name, x, y, player_id, tribe_id, points)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare village insert: %w", err)
		}
		defer closeQuietly(villageStmt)
		for i := range snap.Villages {
			v := &snap.Villages[i]
			if _, err := villageStmt.ExecContext(ctx, world, v.ID, v.Name, v.X, v.Y, v.PlayerID, v.TribeID, v.Points); err != nil {
				return fmt.Errorf("failed to insert village %d: %w", v.ID, err)
			}
		}

		playerStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO players (world, player_id, name, tribe_id, villages, points)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare player insert: %w", err)
		}
		defer closeQuietly(playerStmt)
		for i := range snap.Players {
			p := &snap.Players[i]
			if _, err := playerStmt.ExecContext(ctx, world, p.ID, p.Name, p.TribeID, p.Villages, p.Points); err != nil {
				return fmt.Errorf("failed to insert player %d: %w", p.ID, err)
			}
		}

		tribeStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO tribes (world, tribe_id, name, tag) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare tribe insert: %w", err)
		}
		defer closeQuietly(tribeStmt)
		for i := range snap.Tribes {
			t := &snap.Tribes[i]
			if _, err := tribeStmt.ExecContext(ctx, world, t.ID, t.Name, t.Tag); err != nil {
				return fmt.Errorf("failed to insert tribe %d: %w", t.ID, err)
			}
		}
		return nil
	})
}
