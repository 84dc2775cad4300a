// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tribewatch/internal/config"
	"github.com/tomtom215/tribewatch/internal/models"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	// The template keeps {world} in the path so tests can assert on it.
	client := New(&config.FeedConfig{
		BaseURLTemplate: server.URL + "/{world}",
		Timeout:         2 * time.Second,
		UserAgent:       "tribewatch-test",
	})
	return client, server
}

func TestParseConquerFeed(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		since         int64
		wantEntries   int
		wantMalformed int
	}{
		{"empty", "", 0, 0, 0},
		{"two rows", "1,100,5,6\n2,101,7,0", 0, 2, 0},
		{"extended fields", "1,100,5,6,1,200,300", 0, 1, 0},
		{"too few fields", "1,100,5\n2,101,7,0", 0, 1, 1},
		{"non-integer", "1,abc,5,6 2,101,7,0", 0, 1, 1},
		{"older than since", "1,99,5,6 2,100,7,0", 100, 1, 0},
		{"mixed whitespace", "  1,100,5,6\t\n\n2,101,7,0  ", 0, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, malformed := ParseConquerFeed([]byte(tt.body), tt.since)
			if len(entries) != tt.wantEntries {
				t.Errorf("entries = %d, want %d", len(entries), tt.wantEntries)
			}
			if malformed != tt.wantMalformed {
				t.Errorf("malformed = %d, want %d", malformed, tt.wantMalformed)
			}
		})
	}

	entries, _ := ParseConquerFeed([]byte("42,1700000000,12,34"), 0)
	want := models.FeedEntry{VillageID: 42, Timestamp: 1700000000, NewOwnerID: 12, OldOwnerID: 34}
	if entries[0] != want {
		t.Errorf("entry = %+v, want %+v", entries[0], want)
	}
}

func TestParseKillScores(t *testing.T) {
	scores, malformed := ParseKillScores([]byte("1,10,5000\n2,11,4000\r\nbad\n3,x,1\n\n"))
	if len(scores) != 2 {
		t.Fatalf("scores = %d, want 2", len(scores))
	}
	if malformed != 2 {
		t.Errorf("malformed = %d, want 2", malformed)
	}
	if scores[1] != (models.KillScore{Rank: 2, PlayerID: 11, Kills: 4000}) {
		t.Errorf("scores[1] = %+v", scores[1])
	}
}

func TestFetchDeltasSince(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.UserAgent()
		fmt.Fprint(w, "1,1000,5,6\n2,1001,7,0\nbroken\n")
	})

	entries, err := client.FetchDeltasSince(context.Background(), "nl90", 1000)
	if err != nil {
		t.Fatalf("FetchDeltasSince() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
	if gotPath != "/nl90/interface.php" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "func=get_conquer_extended&since=1000" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotUA != "tribewatch-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetchKillScores(t *testing.T) {
	var gotPath string
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, "1,10,5000\n")
	})

	scores, err := client.FetchKillScores(context.Background(), "nl90", models.KillDefense)
	if err != nil {
		t.Fatalf("FetchKillScores() error = %v", err)
	}
	if len(scores) != 1 || scores[0].Kills != 5000 {
		t.Errorf("scores = %+v", scores)
	}
	if gotPath != "/nl90/map/kill_def.txt" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestFetch_FailuresAreNoData(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}},
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		}},
		{"huge error body", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, strings.Repeat("x", 1<<20))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, tt.handler)
			_, err := client.FetchDeltasSince(context.Background(), "nl90", 0)
			if !errors.Is(err, ErrNoData) {
				t.Errorf("error = %v, want ErrNoData", err)
			}
			if len(err.Error()) > maxErrorBody+1024 {
				t.Errorf("error message not bounded: %d bytes", len(err.Error()))
			}
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.FetchDeltasSince(ctx, "nl90", 0); !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestFetch_CircuitOpens(t *testing.T) {
	var hits atomic.Int32
	client, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 11; i++ {
		_, _ = client.FetchDeltasSince(context.Background(), "nl90", 0)
	}
	if state := client.breaker("nl90").State(); state != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", state)
	}

	before := hits.Load()
	_, err := client.FetchDeltasSince(context.Background(), "nl90", 0)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
	if hits.Load() != before {
		t.Error("open circuit must not reach the server")
	}
}

func TestFetch_NotFoundDoesNotTrip(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	for i := 0; i < 15; i++ {
		_, _ = client.FetchKillScores(context.Background(), "xx1", models.KillAttack)
	}
	if state := client.breaker("xx1").State(); state != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", state)
	}
}

func TestFetch_FailingWorldsDoNotTripHealthyWorld(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/nl1/") {
			fmt.Fprint(w, "1,100,5,6")
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	for round := 0; round < 11; round++ {
		for _, world := range []string{"nl1", "nl2", "nl3"} {
			_, _ = client.FetchDeltasSince(ctx, world, 0)
		}
	}

	for _, world := range []string{"nl2", "nl3"} {
		if state := client.breaker(world).State(); state != gobreaker.StateOpen {
			t.Errorf("breaker %s state = %v, want open", world, state)
		}
	}
	if state := client.breaker("nl1").State(); state != gobreaker.StateClosed {
		t.Errorf("breaker nl1 state = %v, want closed", state)
	}

	entries, err := client.FetchDeltasSince(ctx, "nl1", 0)
	if err != nil {
		t.Fatalf("FetchDeltasSince(nl1) error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
	if name := client.breaker("nl2").Name(); name != "tribalwars-feed-nl2" {
		t.Errorf("breaker name = %q", name)
	}
}
