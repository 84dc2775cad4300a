// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tribewatch/internal/metrics"
)

// Pacer spaces messages to the same destination at least minInterval
// apart. Waiters are served in the order they reserved.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
}

// NewPacer creates a pacer. A zero interval disables pacing.
func NewPacer(minInterval time.Duration) *Pacer {
	every := rate.Inf
	if minInterval > 0 {
		every = rate.Every(minInterval)
	}
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
	}
}

func (p *Pacer) limiter(destination string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[destination]
	if !ok {
		l = rate.NewLimiter(p.every, 1)
		p.limiters[destination] = l
	}
	return l
}

// Wait blocks until destination may receive its next message.
func (p *Pacer) Wait(ctx context.Context, destination string) error {
	start := time.Now()
	err := p.limiter(destination).Wait(ctx)
	metrics.PacingWait.Observe(time.Since(start).Seconds())
	return err
}

// Forget drops the limiter of a removed destination.
func (p *Pacer) Forget(destination string) {
	p.mu.Lock()
	delete(p.limiters, destination)
	p.mu.Unlock()
}
