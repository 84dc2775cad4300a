// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/tribewatch/internal/models"
)

// ErrUnknownDestination is returned when an event matches a subscription
// whose destination is not registered or whose sink type has no handler.
var ErrUnknownDestination = errors.New("notify: unknown destination")

// Status classifies a delivery attempt.
type Status int

const (
	// StatusSuccess means the destination accepted the message.
	StatusSuccess Status = iota
	// StatusPermissionDenied means the destination refused us; retrying will not help.
	StatusPermissionDenied
	// StatusTransportError covers rate limiting, server and network errors.
	StatusTransportError
)

// String returns the metric label of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPermissionDenied:
		return "permission_denied"
	case StatusTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one delivery. Err carries detail for logging.
type Result struct {
	Status       Status
	ResponseCode int
	Err          error
}

func success(code int) Result {
	return Result{Status: StatusSuccess, ResponseCode: code}
}

func transportError(err error) Result {
	return Result{Status: StatusTransportError, Err: err}
}

// Sink delivers rendered payloads to one kind of destination.
type Sink interface {
	Type() models.SinkType
	Deliver(ctx context.Context, dest *models.Destination, payload *Payload) Result
}

// Sinks maps sink types to their handlers.
type Sinks map[models.SinkType]Sink

// NewSinks builds the registry from the given handlers.
func NewSinks(sinks ...Sink) Sinks {
	m := make(Sinks, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m[s.Type()] = s
		}
	}
	return m
}

// httpPoster is shared by the webhook-based sinks.
type httpPoster struct {
	client    *http.Client
	userAgent string
}

func newHTTPPoster(timeout time.Duration) httpPoster {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpPoster{
		client:    &http.Client{Timeout: timeout},
		userAgent: "TribeWatch/1.0",
	}
}

// postJSON sends body to target and maps the response onto a Result.
func (h httpPoster) postJSON(ctx context.Context, target string, body interface{}) Result {
	data, err := json.Marshal(body)
	if err != nil {
		return transportError(fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return Result{Status: StatusPermissionDenied, Err: fmt.Errorf("invalid target: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return transportError(fmt.Errorf("failed to send webhook: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return success(resp.StatusCode)
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return Result{
		Status:       classifyStatusCode(resp.StatusCode),
		ResponseCode: resp.StatusCode,
		Err:          fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(msg)),
	}
}

// classifyStatusCode maps a non-2xx status onto a delivery status.
func classifyStatusCode(code int) Status {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return StatusPermissionDenied
	default:
		return StatusTransportError
	}
}
