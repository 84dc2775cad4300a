// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package notify delivers journaled events to subscribed destinations.
//
// For each pending journal entry the Dispatcher resolves matching
// subscriptions, renders a payload, and delivers it once per destination:
//
//	claim (dedup.TryRecord) -> pace -> deliver -> Confirm | Release
//
// An entry is closed as done once every matching destination holds a
// confirmed record. Failed destinations are released and retried on the
// next pass until MaxAttempts is reached; they are then confirmed so they
// are never retried, and the entry is abandoned. A destination held by an
// unexpired claim of another pass or process costs no attempt, and the
// entry stays pending until that claim is confirmed or expires.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/dedup"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/metrics"
	"github.com/tomtom215/tribewatch/internal/models"
)

// Journal is the outbox side of the store.
type Journal interface {
	PendingEvents(ctx context.Context, world string, kind models.Kind, limit int) ([]models.JournalEntry, error)
	CloseEvent(ctx context.Context, key string, status models.EventStatus) error
	RecordAttempt(ctx context.Context, key string) (int, error)
}

// DestinationStore resolves destination ids.
type DestinationStore interface {
	Destination(ctx context.Context, id string) (*models.Destination, error)
}

// SubscriptionMatcher finds the subscriptions an event must reach.
type SubscriptionMatcher interface {
	ListMatching(ctx context.Context, e *models.Event) ([]models.Subscription, error)
}

// Observer is told about every successful delivery.
type Observer interface {
	OnDelivery(d models.Delivery)
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Journal       Journal
	Destinations  DestinationStore
	Subscriptions SubscriptionMatcher
	Ledger        dedup.Ledger
	Renderer      *Renderer
	Sinks         Sinks
	Pacer         *Pacer
	Observers     []Observer
}

// Options tune a Dispatcher.
type Options struct {
	MaxAttempts     int
	DeliveryTimeout time.Duration
	BatchSize       int
}

// Stats summarizes one dispatch pass.
type Stats struct {
	Events    int
	Delivered int
	Skipped   int
	Failed    int
	Done      int
	Abandoned int
}

// Dispatcher fans pending events out to their destinations.
type Dispatcher struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps, opts Options) (*Dispatcher, error) {
	if deps.Journal == nil || deps.Destinations == nil || deps.Subscriptions == nil ||
		deps.Ledger == nil || deps.Renderer == nil {
		return nil, fmt.Errorf("dispatcher: journal, destinations, subscriptions, ledger and renderer are required")
	}
	if deps.Pacer == nil {
		deps.Pacer = NewPacer(time.Second)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &Dispatcher{deps: deps, opts: opts, now: time.Now}, nil
}

// Dispatch delivers the pending events of one world and kind in detection order.
func (d *Dispatcher) Dispatch(ctx context.Context, world string, kind models.Kind) (*Stats, error) {
	entries, err := d.deps.Journal.PendingEvents(ctx, world, kind, d.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}

	stats := &Stats{}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := d.dispatchEvent(ctx, &entries[i], stats); err != nil {
			return stats, err
		}
		stats.Events++
	}
	return stats, nil
}

// target is one destination an event must reach, with the tribe it is
// rendered for.
type target struct {
	destination string
	tracked     int64
}

// targets collapses subscriptions to one target per destination. A
// specific tribe filter wins over the wildcard for rendering.
func targets(subs []models.Subscription) []target {
	index := make(map[string]int, len(subs))
	var out []target
	for _, s := range subs {
		i, seen := index[s.Destination]
		if !seen {
			index[s.Destination] = len(out)
			out = append(out, target{destination: s.Destination, tracked: s.TribeID})
			continue
		}
		if out[i].tracked == models.AllTribes {
			out[i].tracked = s.TribeID
		}
	}
	return out
}

//nolint:gocyclo // one linear pass over the claim/deliver/confirm protocol
func (d *Dispatcher) dispatchEvent(ctx context.Context, entry *models.JournalEntry, stats *Stats) error {
	e := &entry.Event
	logger := logging.Ctx(ctx).With().
		Str("world", e.World).
		Str("kind", string(e.Kind)).
		Str("event_key", e.Key).
		Logger()

	subs, err := d.deps.Subscriptions.ListMatching(ctx, e)
	if err != nil {
		return fmt.Errorf("match subscriptions for %s: %w", e.Key, err)
	}

	var (
		pending  int
		held     int
		released []string
		payloads = make(map[int64]*Payload)
	)

	for _, t := range targets(subs) {
		claimed, err := d.deps.Ledger.TryRecord(ctx, t.destination, e.Key)
		if err != nil {
			logger.Warn().Err(err).Str("destination", t.destination).Msg("Failed to claim delivery")
			pending++
			continue
		}
		if !claimed {
			stats.Skipped++
			metrics.DedupSkips.WithLabelValues(string(e.Kind)).Inc()
			confirmed, err := d.deps.Ledger.Confirmed(ctx, t.destination, e.Key)
			switch {
			case err != nil:
				logger.Warn().Err(err).Str("destination", t.destination).Msg("Failed to read dedup record")
				pending++
			case !confirmed:
				// Leased by another claimant; reclaimable once the lease expires.
				pending++
				held++
			}
			continue
		}

		payload, ok := payloads[t.tracked]
		if !ok {
			payload, err = d.deps.Renderer.Render(ctx, e, t.tracked)
			if errors.Is(err, ErrVanished) {
				d.release(ctx, &logger, t.destination, e.Key)
				logger.Debug().Msg("Event subject vanished from snapshot, abandoning")
				return d.close(ctx, &logger, e, models.EventAbandoned, stats)
			}
			if err != nil {
				d.release(ctx, &logger, t.destination, e.Key)
				logger.Warn().Err(err).Msg("Failed to render event")
				pending++
				continue
			}
			payloads[t.tracked] = payload
		}

		res, dest, err := d.deliver(ctx, t.destination, payload)
		if err != nil {
			d.release(ctx, &logger, t.destination, e.Key)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Str("destination", t.destination).Msg("Delivery skipped")
			pending++
			released = append(released, t.destination)
			stats.Failed++
			continue
		}
		metrics.RecordDelivery(string(e.Kind), string(dest.Sink), res.Status.String())

		if res.Status != StatusSuccess {
			d.release(ctx, &logger, t.destination, e.Key)
			logger.Warn().Err(res.Err).
				Str("destination", t.destination).
				Str("result", res.Status.String()).
				Int("status_code", res.ResponseCode).
				Msg("Delivery failed")
			pending++
			released = append(released, t.destination)
			stats.Failed++
			continue
		}

		if err := d.deps.Ledger.Confirm(ctx, t.destination, e.Key); err != nil {
			logger.Error().Err(err).Str("destination", t.destination).Msg("Failed to confirm delivery")
			pending++
			continue
		}
		stats.Delivered++
		d.notifyObservers(dest, e)
	}

	if pending == 0 {
		return d.close(ctx, &logger, e, models.EventDone, stats)
	}
	if pending == held {
		logger.Debug().Int("held", held).Msg("Waiting for leased deliveries")
		return nil
	}

	attempts, err := d.deps.Journal.RecordAttempt(ctx, e.Key)
	if err != nil {
		return fmt.Errorf("record attempt for %s: %w", e.Key, err)
	}
	if attempts < d.opts.MaxAttempts {
		return nil
	}

	for _, dest := range released {
		claimed, err := d.deps.Ledger.TryRecord(ctx, dest, e.Key)
		if err == nil && claimed {
			err = d.deps.Ledger.Confirm(ctx, dest, e.Key)
		}
		if err != nil {
			logger.Warn().Err(err).Str("destination", dest).Msg("Failed to record abandoned delivery")
		}
	}
	if held > 0 {
		logger.Warn().Int("attempts", attempts).Int("held", held).Strs("destinations", released).
			Msg("Gave up on failed destinations, waiting for leased deliveries")
		return nil
	}
	logger.Warn().Int("attempts", attempts).Strs("destinations", released).Msg("Event abandoned after max attempts")
	return d.close(ctx, &logger, e, models.EventAbandoned, stats)
}

// deliver paces and sends one payload. An error means nothing was sent.
func (d *Dispatcher) deliver(ctx context.Context, destID string, payload *Payload) (Result, *models.Destination, error) {
	dest, err := d.deps.Destinations.Destination(ctx, destID)
	if errors.Is(err, database.ErrNotFound) {
		return Result{}, nil, fmt.Errorf("%w: %s", ErrUnknownDestination, destID)
	}
	if err != nil {
		return Result{}, nil, err
	}
	sink, ok := d.deps.Sinks[dest.Sink]
	if !ok {
		return Result{}, nil, fmt.Errorf("%w: no %s sink for %s", ErrUnknownDestination, dest.Sink, destID)
	}

	if err := d.deps.Pacer.Wait(ctx, destID); err != nil {
		return Result{}, nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	defer cancel()
	return sink.Deliver(sendCtx, dest, payload), dest, nil
}

func (d *Dispatcher) release(ctx context.Context, logger *zerolog.Logger, dest, key string) {
	if err := d.deps.Ledger.Release(ctx, dest, key); err != nil {
		logger.Warn().Err(err).Str("destination", dest).Msg("Failed to release claim")
	}
}

func (d *Dispatcher) close(ctx context.Context, logger *zerolog.Logger, e *models.Event, status models.EventStatus, stats *Stats) error {
	if err := d.deps.Journal.CloseEvent(ctx, e.Key, status); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Debug().Msg("Event already closed")
			return nil
		}
		return fmt.Errorf("close event %s: %w", e.Key, err)
	}
	metrics.EventsClosed.WithLabelValues(string(e.Kind), string(status)).Inc()
	if status == models.EventDone {
		stats.Done++
	} else {
		stats.Abandoned++
	}
	return nil
}

func (d *Dispatcher) notifyObservers(dest *models.Destination, e *models.Event) {
	if len(d.deps.Observers) == 0 {
		return
	}
	delivery := models.Delivery{
		Destination: dest.ID,
		Sink:        dest.Sink,
		Event:       *e,
		DeliveredAt: d.now().UTC(),
	}
	for _, o := range d.deps.Observers {
		o.OnDelivery(delivery)
	}
}
