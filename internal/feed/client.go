// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

// Package feed fetches the remote conquer feed and kill-score files of a
// game world.
//
// Every failure mode (non-200 status, timeout, transport error, open
// circuit) surfaces as ErrNoData so the caller keeps its cursor and retries
// on the next cycle.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tribewatch/internal/config"
	"github.com/tomtom215/tribewatch/internal/logging"
	"github.com/tomtom215/tribewatch/internal/metrics"
	"github.com/tomtom215/tribewatch/internal/models"
)

// ErrNoData means the feed produced nothing usable this cycle.
var ErrNoData = errors.New("feed: no data")

const (
	conquerFeedPath = "/interface.php?func=get_conquer_extended&since="
	killFilePath    = "/map/%s.txt"

	// maxErrorBody bounds how much of a failed response is read for logging.
	maxErrorBody = 64 << 10

	feedConquer = "conquer"
	feedKills   = "kills"

	defaultTimeout = 20 * time.Second
)

// statusError is a non-200 response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// Client reads world feeds over HTTP. Every world is its own host and gets
// its own circuit breaker.
type Client struct {
	http        *http.Client
	urlTemplate string
	userAgent   string

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// New creates a feed client from configuration.
func New(cfg *config.FeedConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient creates a feed client using the given HTTP client.
func NewWithHTTPClient(cfg *config.FeedConfig, httpClient *http.Client) *Client {
	return &Client{
		http:        httpClient,
		urlTemplate: cfg.BaseURLTemplate,
		userAgent:   cfg.UserAgent,
		breakers:    make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// breaker returns the circuit breaker of a world, creating it on first use.
func (c *Client) breaker(world string) *gobreaker.CircuitBreaker[[]byte] {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[world]
	if !ok {
		cb = newBreaker("tribalwars-feed-" + world)
		c.breakers[world] = cb
	}
	return cb
}

// BaseURL expands the URL template for a world.
func (c *Client) BaseURL(world string) string {
	return strings.TrimRight(strings.ReplaceAll(c.urlTemplate, "{world}", world), "/")
}

// FetchDeltasSince returns the conquer feed entries with a timestamp >= since.
// Malformed rows are skipped and counted.
func (c *Client) FetchDeltasSince(ctx context.Context, world string, since int64) ([]models.FeedEntry, error) {
	url := c.BaseURL(world) + conquerFeedPath + strconv.FormatInt(since, 10)

	body, err := c.fetch(ctx, feedConquer, world, url)
	if err != nil {
		return nil, err
	}

	entries, malformed := ParseConquerFeed(body, since)
	if malformed > 0 {
		metrics.FeedMalformedRows.WithLabelValues(feedConquer).Add(float64(malformed))
		logging.Warn().
			Str("world", world).
			Int("malformed", malformed).
			Msg("Skipped malformed conquer feed rows")
	}
	return entries, nil
}

// FetchKillScores returns the kill-score file of a world for one kill type.
func (c *Client) FetchKillScores(ctx context.Context, world string, killType models.KillType) ([]models.KillScore, error) {
	url := c.BaseURL(world) + fmt.Sprintf(killFilePath, killType)

	body, err := c.fetch(ctx, feedKills, world, url)
	if err != nil {
		return nil, err
	}

	scores, malformed := ParseKillScores(body)
	if malformed > 0 {
		metrics.FeedMalformedRows.WithLabelValues(feedKills).Add(float64(malformed))
		logging.Warn().
			Str("world", world).
			Str("kill_type", string(killType)).
			Int("malformed", malformed).
			Msg("Skipped malformed kill-score rows")
	}
	return scores, nil
}

// fetch performs a GET through the circuit breaker and maps every failure to ErrNoData.
func (c *Client) fetch(ctx context.Context, feed, world, url string) ([]byte, error) {
	cb := c.breaker(world)
	body, err := cb.Execute(func() ([]byte, error) {
		return c.get(ctx, url)
	})
	recordBreakerResult(cb.Name(), err)

	if err != nil {
		metrics.FeedRequests.WithLabelValues(feed, "no_data").Inc()
		logging.Warn().
			Err(err).
			Str("world", world).
			Str("feed", feed).
			Msg("Feed request failed")
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNoData, feed, world, err)
	}

	metrics.FeedRequests.WithLabelValues(feed, "ok").Inc()
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
