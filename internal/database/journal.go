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
	"time"

	"github.com/tomtom215/tribewatch/internal/models"
)

// CycleResult is everything one reconciliation of one world must persist.
type CycleResult struct {
	World string
	Kind  models.Kind

	// Events are journaled as pending; a key already present is left alone.
	Events []models.Event

	// Baselines maps scope to the entity states to upsert.
	Baselines map[string]map[int64]models.BaselineState

	// Cursor, when set, advances the (World, Kind) feed cursor.
	Cursor *int64
}

// EventFilter narrows RecentEvents.
type EventFilter struct {
	World  string
	Kind   models.Kind
	Status models.EventStatus
	Limit  int
}

const journalColumns = `event_key, world, kind, entity_id, transition,
	old_owner_id, new_owner_id, old_tribe_id, new_tribe_id,
	old_magnitude, new_magnitude, level, metric, detected_at,
	status, attempts, updated_at`

// Commit writes the journal inserts, baseline upserts and cursor advance of
// one world in a single transaction and returns how many events were new.
func (db *DB) Commit(ctx context.Context, res *CycleResult) (int, error) {
	inserted := 0
	now := db.now()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		if len(res.Events) > 0 {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO event_journal (`+journalColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
				ON CONFLICT (event_key) DO NOTHING`)
			if err != nil {
				return fmt.Errorf("failed to prepare journal insert: %w", err)
			}
			defer closeQuietly(stmt)

			for i := range res.Events {
				e := &res.Events[i]
				result, err := stmt.ExecContext(ctx,
					e.Key, e.World, string(e.Kind), e.EntityID, string(e.Transition),
					e.OldOwnerID, e.NewOwnerID, e.OldTribeID, e.NewTribeID,
					e.OldMagnitude, e.NewMagnitude, e.Level, e.Metric, e.DetectedAt.UTC(),
					string(models.EventPending), now)
				if err != nil {
					return fmt.Errorf("failed to journal event %s: %w", e.Key, err)
				}
				if n, err := result.RowsAffected(); err == nil {
					inserted += int(n)
				}
			}
		}

		for scope, states := range res.Baselines {
			if len(states) == 0 {
				continue
			}
			if err := upsertBaselines(ctx, tx, res.World, scope, states, now); err != nil {
				return err
			}
		}

		if res.Cursor != nil {
			if err := advanceCursor(ctx, tx, res.World, res.Kind, *res.Cursor, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanJournalEntry(s scanner) (models.JournalEntry, error) {
	var (
		entry              models.JournalEntry
		kind, transition   string
		status             string
		detected, modified time.Time
	)
	err := s.Scan(&entry.Key, &entry.World, &kind, &entry.EntityID, &transition,
		&entry.OldOwnerID, &entry.NewOwnerID, &entry.OldTribeID, &entry.NewTribeID,
		&entry.OldMagnitude, &entry.NewMagnitude, &entry.Level, &entry.Metric, &detected,
		&status, &entry.Attempts, &modified)
	if err != nil {
		return entry, err
	}
	entry.Kind = models.Kind(kind)
	entry.Transition = models.Transition(transition)
	entry.Status = models.EventStatus(status)
	entry.DetectedAt = detected.UTC()
	entry.UpdatedAt = modified.UTC()
	return entry, nil
}

func (db *DB) queryJournal(ctx context.Context, query string, args ...interface{}) ([]models.JournalEntry, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer closeQuietly(rows)

	var entries []models.JournalEntry
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PendingEvents returns the pending entries of a world and kind, oldest first.
func (db *DB) PendingEvents(ctx context.Context, world string, kind models.Kind, limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	return db.queryJournal(ctx, `
		SELECT `+journalColumns+`
		FROM event_journal
		WHERE world = ? AND kind = ? AND status = ?
		ORDER BY detected_at, event_key
		LIMIT ?`, world, string(kind), string(models.EventPending), limit)
}

// Event returns one journal entry or ErrNotFound.
func (db *DB) Event(ctx context.Context, key string) (*models.JournalEntry, error) {
	entries, err := db.queryJournal(ctx, `
		SELECT `+journalColumns+` FROM event_journal WHERE event_key = ?`, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return &entries[0], nil
}

// RecentEvents lists journal entries newest first.
func (db *DB) RecentEvents(ctx context.Context, filter EventFilter) ([]models.JournalEntry, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.World != "" {
		conditions = append(conditions, "world = ?")
		args = append(args, filter.World)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT ` + journalColumns + ` FROM event_journal`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY detected_at DESC, event_key LIMIT ?"
	args = append(args, limit)

	return db.queryJournal(ctx, query, args...)
}

// CloseEvent moves a pending entry to done or abandoned.
func (db *DB) CloseEvent(ctx context.Context, key string, status models.EventStatus) error {
	if status == models.EventPending {
		return fmt.Errorf("cannot close event %s as pending", key)
	}
	result, err := db.conn.ExecContext(ctx, `
		UPDATE event_journal SET status = ?, updated_at = ?
		WHERE event_key = ? AND status = ?`,
		string(status), db.now(), key, string(models.EventPending))
	if err != nil {
		return fmt.Errorf("failed to close event %s: %w", key, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAttempt increments the attempt counter of a pending entry and returns the new count.
func (db *DB) RecordAttempt(ctx context.Context, key string) (int, error) {
	var attempts int
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE event_journal SET attempts = attempts + 1, updated_at = ?
			WHERE event_key = ?`, db.now(), key); err != nil {
			return fmt.Errorf("failed to record attempt for %s: %w", key, err)
		}
		err := tx.QueryRowContext(ctx, `
			SELECT attempts FROM event_journal WHERE event_key = ?`, key).Scan(&attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// PurgeClosedEvents deletes done and abandoned entries last updated before cutoff.
func (db *DB) PurgeClosedEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM event_journal WHERE status <> ? AND updated_at < ?`,
		string(models.EventPending), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge journal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
