// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package database

import (
	"context"
	"fmt"
)

// The snapshot tables carry no primary key: ingestion replaces a world's rows
// wholesale with DELETE + INSERT in one transaction.
var schemaQueries = []string{
	`CREATE TABLE IF NOT EXISTS villages (
		world VARCHAR NOT NULL,
		village_id BIGINT NOT NULL,
		name VARCHAR NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		player_id BIGINT NOT NULL,
		tribe_id BIGINT NOT NULL,
		points BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		world VARCHAR NOT NULL,
		player_id BIGINT NOT NULL,
		name VARCHAR NOT NULL,
		tribe_id BIGINT NOT NULL,
		villages INTEGER NOT NULL,
		points BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tribes (
		world VARCHAR NOT NULL,
		tribe_id BIGINT NOT NULL,
		name VARCHAR NOT NULL,
		tag VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS baselines (
		world VARCHAR NOT NULL,
		scope VARCHAR NOT NULL,
		entity_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		tribe_id BIGINT NOT NULL,
		magnitude BIGINT NOT NULL,
		changed_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (world, scope, entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS feed_cursors (
		world VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		last_since BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (world, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS event_journal (
		event_key VARCHAR PRIMARY KEY,
		world VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		entity_id BIGINT NOT NULL,
		transition VARCHAR NOT NULL,
		old_owner_id BIGINT NOT NULL,
		new_owner_id BIGINT NOT NULL,
		old_tribe_id BIGINT NOT NULL,
		new_tribe_id BIGINT NOT NULL,
		old_magnitude BIGINT NOT NULL,
		new_magnitude BIGINT NOT NULL,
		level INTEGER NOT NULL DEFAULT 0,
		metric VARCHAR NOT NULL DEFAULT '',
		detected_at TIMESTAMP NOT NULL,
		status VARCHAR NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		destination VARCHAR NOT NULL,
		world VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		tribe_id BIGINT NOT NULL,
		min_magnitude BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (destination, world, kind, tribe_id)
	)`,
	`CREATE TABLE IF NOT EXISTS destinations (
		id VARCHAR PRIMARY KEY,
		sink VARCHAR NOT NULL,
		target VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// InitSchema creates all tables if they do not exist.
func (db *DB) InitSchema(ctx context.Context) error {
	for _, query := range schemaQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	// Persist schema changes so a restart never replays DDL from the WAL.
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("failed to checkpoint schema: %w", err)
	}
	return nil
}
