// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/tomtom215/tribewatch/internal/cache"
)

// CachedLookup memoizes tribe tags in front of another Lookup. Villages
// and players change with every snapshot and are always read through.
type CachedLookup struct {
	Lookup
	tags *cache.LRU[string]
}

// NewCachedLookup wraps lookup with a tribe tag cache of size entries.
// A non-positive ttl disables caching and returns lookup unchanged.
func NewCachedLookup(lookup Lookup, size int, ttl time.Duration) Lookup {
	if ttl <= 0 {
		return lookup
	}
	return &CachedLookup{Lookup: lookup, tags: cache.NewLRU[string](size, ttl)}
}

// TribeTag implements Lookup. Lookup errors are not cached.
func (c *CachedLookup) TribeTag(ctx context.Context, world string, id int64) (string, error) {
	key := world + "/" + strconv.FormatInt(id, 10)
	if tag, ok := c.tags.Get(key); ok {
		return tag, nil
	}
	tag, err := c.Lookup.TribeTag(ctx, world, id)
	if err != nil {
		return "", err
	}
	c.tags.Add(key, tag)
	return tag, nil
}

var _ Lookup = (*CachedLookup)(nil)
