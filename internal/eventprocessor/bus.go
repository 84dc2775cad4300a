// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package eventprocessor provides the NATS JetStream bus behind "nats"
// destinations: an optional embedded server, the notification stream, and
// a deduplicating publisher.
//
// Startup order:
//
//	EmbeddedServer (optional) -> StreamInitializer.EnsureStream -> Publisher
package eventprocessor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/tribewatch/internal/logging"
)

// Bus owns the connections behind bus destinations.
type Bus struct {
	server    *EmbeddedServer
	conn      *natsgo.Conn
	stream    *StreamInitializer
	publisher *Publisher
	url       string
}

// Open starts the embedded server when configured, provisions the stream
// and connects the publisher.
func Open(ctx context.Context, s Settings) (*Bus, error) {
	b := &Bus{url: s.Publisher.URL}

	if s.Embedded {
		srv, err := NewEmbeddedServer(&s.Server)
		if err != nil {
			return nil, err
		}
		b.server = srv
		b.url = srv.ClientURL()
		logging.Info().Str("url", b.url).Msg("Embedded NATS server started")
	}

	conn, err := natsgo.Connect(b.url, natsgo.Name("tribewatch-admin"))
	if err != nil {
		b.shutdownServer()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	b.stream, err = NewStreamInitializer(js, &s.Stream)
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	if _, err := b.stream.EnsureStream(ctx); err != nil {
		_ = b.Close(ctx)
		return nil, err
	}

	pubCfg := s.Publisher
	pubCfg.URL = b.url
	pub, err := NewPublisher(pubCfg, watermill.NewSlogLogger(logging.NewSlogLogger()))
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	pub.SetCircuitBreaker(NewCircuitBreaker(s.Breaker))
	b.publisher = pub

	logging.Info().
		Str("stream", s.Stream.Name).
		Strs("subjects", s.Stream.Subjects).
		Msg("Notification bus ready")
	return b, nil
}

// Publisher returns the deduplicating publisher.
func (b *Bus) Publisher() *Publisher {
	return b.publisher
}

// URL returns the NATS URL the bus is connected to.
func (b *Bus) URL() string {
	return b.url
}

// Healthy reports whether the connection is up and the stream reachable.
func (b *Bus) Healthy(ctx context.Context) bool {
	if b.conn == nil || !b.conn.IsConnected() {
		return false
	}
	return b.stream != nil && b.stream.IsHealthy(ctx)
}

// StreamInfo returns the current stream state.
func (b *Bus) StreamInfo(ctx context.Context) (*jetstream.StreamInfo, error) {
	return b.stream.GetStreamInfo(ctx)
}

// Close stops the publisher, the admin connection and the embedded server.
func (b *Bus) Close(ctx context.Context) error {
	var errs []error
	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown NATS server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) shutdownServer() {
	if b.server != nil {
		_ = b.server.Shutdown(context.Background())
	}
}
