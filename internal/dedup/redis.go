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

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/metrics"
)

const backendRedis = "redis"

// releaseScript deletes the key only while it still holds our claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLedger stores records in Redis. A claim is a key set with NX and a
// PX lease; a confirmation overwrites it without expiry.
type RedisLedger struct {
	client *redis.Client
	prefix string
	lease  time.Duration
	holder string

	mu     sync.RWMutex
	closed bool
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(addr, password string, db int, prefix string, lease time.Duration) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logging.Info().Str("addr", addr).Int("db", db).Msg("Dedup ledger connected to Redis")
	return NewRedisLedger(client, prefix, lease), nil
}

// NewRedisLedger wraps an existing client.
func NewRedisLedger(client *redis.Client, prefix string, lease time.Duration) *RedisLedger {
	if lease <= 0 {
		lease = defaultLease
	}
	return &RedisLedger{
		client: client,
		prefix: prefix,
		lease:  lease,
		holder: newHolderID(),
	}
}

func (l *RedisLedger) key(destination, key string) (string, error) {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return "", ErrClosed
	}

	rk, err := recordKey(destination, key)
	if err != nil {
		return "", err
	}
	return l.prefix + rk, nil
}

func (l *RedisLedger) claimValue() string {
	return stateClaimed + ":" + l.holder
}

// TryRecord claims the key with SET NX PX.
func (l *RedisLedger) TryRecord(ctx context.Context, destination, key string) (bool, error) {
	k, err := l.key(destination, key)
	if err != nil {
		return false, err
	}

	ok, err := l.client.SetNX(ctx, k, l.claimValue(), l.lease).Result()
	metrics.RecordLedgerOp(backendRedis, "claim", err)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", k, err)
	}
	return ok, nil
}

// Confirm stores the permanent record.
func (l *RedisLedger) Confirm(ctx context.Context, destination, key string) error {
	k, err := l.key(destination, key)
	if err != nil {
		return err
	}

	err = l.client.Set(ctx, k, stateConfirmed, 0).Err()
	metrics.RecordLedgerOp(backendRedis, "confirm", err)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", k, err)
	}
	return nil
}

// Release deletes the key if it still holds this ledger's claim.
func (l *RedisLedger) Release(ctx context.Context, destination, key string) error {
	k, err := l.key(destination, key)
	if err != nil {
		return err
	}

	err = releaseScript.Run(ctx, l.client, []string{k}, l.claimValue()).Err()
	metrics.RecordLedgerOp(backendRedis, "release", err)
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", k, err)
	}
	return nil
}

// Confirmed reports whether the key holds a permanent record.
func (l *RedisLedger) Confirmed(ctx context.Context, destination, key string) (bool, error) {
	k, err := l.key(destination, key)
	if err != nil {
		return false, err
	}

	val, err := l.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", k, err)
	}
	return val == stateConfirmed, nil
}

// GC is a no-op; Redis expires claims itself.
func (l *RedisLedger) GC() error {
	return nil
}

// Close closes the client. Calling Close twice is a no-op.
func (l *RedisLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.client.Close()
}
