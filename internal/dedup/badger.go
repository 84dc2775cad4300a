// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/metrics"
)

const (
	backendBadger = "badger"
	prefixRecord  = "dedup:"

	// maxConflictRetries bounds retries of a badger transaction conflict.
	maxConflictRetries = 5
	gcDiscardRatio     = 0.5
)

// entry is the stored value of one ledger record.
type entry struct {
	State       string     `json:"state"`
	LeaseHolder string     `json:"lease_holder,omitempty"`
	LeaseExpiry time.Time  `json:"lease_expiry,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// BadgerLedger is the embedded, default ledger backend.
type BadgerLedger struct {
	db     *badger.DB
	lease  time.Duration
	holder string
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) a badger ledger at path.
func OpenBadger(path string, lease time.Duration) (*BadgerLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("badger ledger path is required")
	}
	if lease <= 0 {
		lease = defaultLease
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Dur("lease", lease).Msg("Dedup ledger opened")
	return &BadgerLedger{
		db:     db,
		lease:  lease,
		holder: newHolderID(),
		now:    time.Now,
	}, nil
}

// SetClock replaces the clock that decides lease expiry. Call it before the
// ledger is shared.
func (l *BadgerLedger) SetClock(now func() time.Time) {
	l.now = now
}

func (l *BadgerLedger) checkOpen() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

// update retries fn on transaction conflicts.
func (l *BadgerLedger) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = l.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func readEntry(txn *badger.Txn, key []byte) (*entry, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var e entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal ledger entry: %w", err)
	}
	return &e, nil
}

func writeEntry(txn *badger.Txn, key []byte, e *entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	be := badger.NewEntry(key, data)
	if ttl > 0 {
		be = be.WithTTL(ttl)
	}
	return txn.SetEntry(be)
}

// TryRecord claims (destination, key) unless it is confirmed or leased.
func (l *BadgerLedger) TryRecord(_ context.Context, destination, key string) (bool, error) {
	if err := l.checkOpen(); err != nil {
		return false, err
	}
	rk, err := recordKey(destination, key)
	if err != nil {
		return false, err
	}

	var claimed bool
	err = l.update(func(txn *badger.Txn) error {
		claimed = false
		k := []byte(prefixRecord + rk)
		now := l.now()

		existing, err := readEntry(txn, k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		case existing.State == stateConfirmed:
			return nil
		case now.Before(existing.LeaseExpiry):
			return nil
		default:
			logging.Debug().
				Str("destination", destination).
				Str("event_key", key).
				Str("previous_holder", existing.LeaseHolder).
				Msg("Reclaiming expired dedup claim")
		}

		// The badger TTL only cleans up abandoned claims; expiry is decided by LeaseExpiry.
		claim := &entry{State: stateClaimed, LeaseHolder: l.holder, LeaseExpiry: now.Add(l.lease)}
		if err := writeEntry(txn, k, claim, 2*l.lease); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	metrics.RecordLedgerOp(backendBadger, "claim", err)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", rk, err)
	}
	return claimed, nil
}

// Confirm writes the permanent record.
func (l *BadgerLedger) Confirm(_ context.Context, destination, key string) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	rk, err := recordKey(destination, key)
	if err != nil {
		return err
	}

	err = l.update(func(txn *badger.Txn) error {
		confirmedAt := l.now().UTC()
		return writeEntry(txn, []byte(prefixRecord+rk), &entry{
			State:       stateConfirmed,
			ConfirmedAt: &confirmedAt,
		}, 0)
	})
	metrics.RecordLedgerOp(backendBadger, "confirm", err)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", rk, err)
	}
	return nil
}

// Release removes this process's unconfirmed claim. Missing records,
// confirmed records and foreign claims are left alone.
func (l *BadgerLedger) Release(_ context.Context, destination, key string) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	rk, err := recordKey(destination, key)
	if err != nil {
		return err
	}

	err = l.update(func(txn *badger.Txn) error {
		k := []byte(prefixRecord + rk)
		existing, err := readEntry(txn, k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if existing.State != stateClaimed || existing.LeaseHolder != l.holder {
			return nil
		}
		return txn.Delete(k)
	})
	metrics.RecordLedgerOp(backendBadger, "release", err)
	if err != nil {
		return fmt.Errorf("release %s: %w", rk, err)
	}
	return nil
}

// Confirmed reports whether a permanent record exists.
func (l *BadgerLedger) Confirmed(_ context.Context, destination, key string) (bool, error) {
	if err := l.checkOpen(); err != nil {
		return false, err
	}
	rk, err := recordKey(destination, key)
	if err != nil {
		return false, err
	}

	var confirmed bool
	err = l.db.View(func(txn *badger.Txn) error {
		existing, err := readEntry(txn, []byte(prefixRecord+rk))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		confirmed = existing.State == stateConfirmed
		return nil
	})
	return confirmed, err
}

// GC runs value log garbage collection until nothing is rewritten.
func (l *BadgerLedger) GC() error {
	if err := l.checkOpen(); err != nil {
		return err
	}

	for {
		err := l.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			metrics.RecordLedgerOp(backendBadger, "gc", err)
			return fmt.Errorf("run GC: %w", err)
		}
	}
	metrics.RecordLedgerOp(backendBadger, "gc", nil)
	return nil
}

// Close closes the badger database. Calling Close twice is a no-op.
func (l *BadgerLedger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Dedup ledger closed")
	return nil
}
