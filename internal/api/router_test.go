// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package api

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/tribewatch/internal/auth"
	"github.com/tomtom215/tribewatch/internal/config"
	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/models"
	ws "github.com/tomtom215/tribewatch/internal/websocket"
)

const testSecret = "a_test_secret_that_is_long_enough_for_hs256"

type fakeLoops struct {
	wakes atomic.Int32
}

func (f *fakeLoops) Statuses() []models.LoopStatus {
	out := make([]models.LoopStatus, 0, len(models.AllKinds()))
	for _, kind := range models.AllKinds() {
		running := kind == models.KindConquer
		out = append(out, models.LoopStatus{Kind: kind, Enabled: true, Running: running})
	}
	return out
}

func (f *fakeLoops) Wake() { f.wakes.Add(1) }

type apiHarness struct {
	srv   *httptest.Server
	db    *database.DB
	loops *fakeLoops
	hub   *ws.Hub
	token string
}

// envelope mirrors models.APIResponse with a raw payload.
type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func newAPIHarness(t *testing.T, sec config.SecurityConfig) *apiHarness {
	t.Helper()
	ctx := context.Background()

	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db := database.NewFromConn(conn)
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.ReplaceSnapshot(ctx, "nl90", &models.Snapshot{
		Players: []models.Player{{ID: 11, Name: "Bravo", TribeID: 100}},
		Tribes:  []models.Tribe{{ID: 100, Name: "First", Tag: "ONE"}},
	}); err != nil {
		t.Fatalf("ReplaceSnapshot() error = %v", err)
	}

	hub := ws.NewHub()
	hubCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Serve(hubCtx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var jwtManager *auth.JWTManager
	token := ""
	if sec.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(&sec)
		if err != nil {
			t.Fatalf("NewJWTManager() error = %v", err)
		}
		token, err = jwtManager.GenerateToken("ops")
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
	}
	if sec.RateLimitReqs == 0 {
		sec.RateLimitDisabled = true
	}

	loops := &fakeLoops{}
	handler := NewHandler(db, loops, hub, nil, sec)
	router := NewRouter(handler, NewChiMiddleware(ChiMiddlewareConfigFrom(&sec)), jwtManager)
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)

	return &apiHarness{srv: srv, db: db, loops: loops, hub: hub, token: token}
}

func (h *apiHarness) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("%s %s: invalid envelope %q: %v", method, path, raw, err)
	}
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", env.Data, err)
	}
}

func (h *apiHarness) putDestination(t *testing.T, id string, sink models.SinkType, target string) {
	t.Helper()
	status, env := h.do(t, http.MethodPut, "/api/v1/destinations/"+id, map[string]string{"sink": string(sink), "target": target})
	if status != http.StatusOK {
		t.Fatalf("PUT destination %s status = %d, error = %+v", id, status, env.Error)
	}
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{JWTSecret: testSecret})
	h.putDestination(t, "d1", models.SinkLog, "")
	status, _ := h.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]interface{}{
		"destination": "d1", "world": "nl90", "kind": "conquer",
	})
	if status != http.StatusCreated {
		t.Fatalf("add status = %d", status)
	}

	// Health is reachable without credentials.
	h.token = ""
	status, env := h.do(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var health models.HealthStatus
	decodeData(t, env, &health)
	if health.Status != "healthy" || !health.DatabaseConnected {
		t.Errorf("health = %+v", health)
	}
	if len(health.Loops) != len(models.AllKinds()) {
		t.Fatalf("loops = %+v", health.Loops)
	}
	for _, loop := range health.Loops {
		if loop.Kind == models.KindConquer && (len(loop.Worlds) != 1 || loop.Worlds[0] != "nl90") {
			t.Errorf("conquer worlds = %v, want [nl90]", loop.Worlds)
		}
	}
}

func TestAuthentication(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{JWTSecret: testSecret})

	status, _ := h.do(t, http.MethodGet, "/api/v1/loops", nil)
	if status != http.StatusOK {
		t.Fatalf("with token status = %d", status)
	}

	h.token = ""
	status, env := h.do(t, http.MethodGet, "/api/v1/loops", nil)
	if status != http.StatusUnauthorized || env.Error == nil || env.Error.Code != ErrCodeUnauthorized {
		t.Errorf("without token status = %d, env = %+v", status, env)
	}

	h.token = "not-a-jwt"
	if status, _ := h.do(t, http.MethodGet, "/api/v1/loops", nil); status != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", status)
	}
}

func TestRateLimit(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{RateLimitReqs: 2, RateLimitWindow: time.Minute})

	for i := 0; i < 2; i++ {
		if status, _ := h.do(t, http.MethodGet, "/api/v1/loops", nil); status != http.StatusOK {
			t.Fatalf("request %d status = %d", i, status)
		}
	}
	status, env := h.do(t, http.MethodGet, "/api/v1/loops", nil)
	if status != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("status = %d, env = %+v", status, env)
	}
}

func TestPutDestination_Validation(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{})

	tests := []struct {
		name string
		id   string
		body interface{}
		want int
	}{
		{"webhook", "hook", map[string]string{"sink": "webhook", "target": "https://example.com/hook"}, http.StatusOK},
		{"discord", "disc", map[string]string{"sink": "discord", "target": "https://discord.com/api/webhooks/1/x"}, http.StatusOK},
		{"nats", "bus", map[string]string{"sink": "nats", "target": "tribewatch.alerts.nl90"}, http.StatusOK},
		{"log without target", "log", map[string]string{"sink": "log"}, http.StatusOK},
		{"webhook ftp", "bad1", map[string]string{"sink": "webhook", "target": "ftp://example.com"}, http.StatusBadRequest},
		{"webhook missing", "bad2", map[string]string{"sink": "webhook"}, http.StatusBadRequest},
		{"nats outside prefix", "bad3", map[string]string{"sink": "nats", "target": "other.alerts"}, http.StatusBadRequest},
		{"nats wildcard", "bad4", map[string]string{"sink": "nats", "target": "tribewatch.>"}, http.StatusBadRequest},
		{"unknown sink", "bad5", map[string]string{"sink": "sms", "target": "+3100"}, http.StatusBadRequest},
		{"unknown field", "bad6", `{"sink":"log","colour":"red"}`, http.StatusBadRequest},
		{"malformed", "bad7", `{"sink":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := h.do(t, http.MethodPut, "/api/v1/destinations/"+tt.id, tt.body)
			if status != tt.want {
				t.Fatalf("status = %d, want %d (error %+v)", status, tt.want, env.Error)
			}
			if tt.want == http.StatusOK {
				var dest models.Destination
				decodeData(t, env, &dest)
				if dest.ID != tt.id || dest.CreatedAt.IsZero() {
					t.Errorf("destination = %+v", dest)
				}
			}
		})
	}

	status, env := h.do(t, http.MethodGet, "/api/v1/destinations", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var dests []models.Destination
	decodeData(t, env, &dests)
	if len(dests) != 4 {
		t.Errorf("registered %d destinations, want 4", len(dests))
	}
}

func TestSubscriptions_Lifecycle(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{})
	h.putDestination(t, "d1", models.SinkWebhook, "https://example.com/hook")

	add := func(body map[string]interface{}) (int, envelope) {
		return h.do(t, http.MethodPost, "/api/v1/subscriptions", body)
	}

	status, env := add(map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "conquer", "tribe_tag": "ONE"})
	if status != http.StatusCreated {
		t.Fatalf("add status = %d, error = %+v", status, env.Error)
	}
	var res subscriptionResult
	decodeData(t, env, &res)
	if !res.Added || res.Subscription.TribeID != 100 {
		t.Errorf("result = %+v", res)
	}
	if h.loops.wakes.Load() != 1 {
		t.Errorf("wakes = %d, want 1", h.loops.wakes.Load())
	}

	// Adding twice is a no-op.
	status, env = add(map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "conquer", "tribe_id": 100})
	if status != http.StatusOK {
		t.Fatalf("re-add status = %d", status)
	}
	decodeData(t, env, &res)
	if res.Added {
		t.Error("re-add reported added")
	}

	status, env = add(map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "wall", "tribe_tag": "alltribes", "min_magnitude": 5})
	if status != http.StatusCreated {
		t.Fatalf("wildcard add status = %d", status)
	}
	decodeData(t, env, &res)
	if res.Subscription.TribeID != models.AllTribes || res.Subscription.MinMagnitude != 5 {
		t.Errorf("wildcard subscription = %+v", res.Subscription)
	}

	errorCases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"unknown tag", map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "conquer", "tribe_tag": "NOPE"}, http.StatusNotFound},
		{"unknown destination", map[string]interface{}{"destination": "zz", "world": "nl90", "kind": "conquer"}, http.StatusNotFound},
		{"bad kind", map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "barracks"}, http.StatusBadRequest},
		{"bad world", map[string]interface{}{"destination": "d1", "world": "NL 90", "kind": "conquer"}, http.StatusBadRequest},
		{"tag and id", map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "conquer", "tribe_tag": "ONE", "tribe_id": 100}, http.StatusBadRequest},
		{"negative magnitude", map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "od", "min_magnitude": -1}, http.StatusBadRequest},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if status, env := add(tt.body); status != tt.want {
				t.Errorf("status = %d, want %d (error %+v)", status, tt.want, env.Error)
			}
		})
	}

	status, env = h.do(t, http.MethodGet, "/api/v1/subscriptions", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var subs []models.Subscription
	decodeData(t, env, &subs)
	if len(subs) != 2 {
		t.Fatalf("subscriptions = %+v, want 2", subs)
	}

	remove := map[string]interface{}{"destination": "d1", "world": "nl90", "kind": "conquer", "tribe_tag": "ONE"}
	var removed removalResult
	_, env = h.do(t, http.MethodDelete, "/api/v1/subscriptions", remove)
	decodeData(t, env, &removed)
	if !removed.WasActive {
		t.Error("first removal reported was_active=false")
	}
	_, env = h.do(t, http.MethodDelete, "/api/v1/subscriptions", remove)
	decodeData(t, env, &removed)
	if removed.WasActive {
		t.Error("second removal reported was_active=true")
	}
}

func TestDeleteDestination_DropsSubscriptions(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{})
	h.putDestination(t, "d1", models.SinkLog, "")
	if status, _ := h.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]interface{}{
		"destination": "d1", "world": "nl90", "kind": "tower",
	}); status != http.StatusCreated {
		t.Fatalf("add status = %d", status)
	}

	if status, _ := h.do(t, http.MethodDelete, "/api/v1/destinations/d1", nil); status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	has, err := h.db.Subscriptions().HasAny(context.Background(), models.KindTower)
	if err != nil || has {
		t.Errorf("HasAny(tower) = %v, %v after destination delete", has, err)
	}
	if status, _ := h.do(t, http.MethodDelete, "/api/v1/destinations/d1", nil); status != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", status)
	}
}

func TestEvents(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{})
	now := time.Now().UTC()
	events := []models.Event{
		{Key: models.OwnershipKey(models.KindConquer, "nl90", 1, now, 10, 11), World: "nl90", Kind: models.KindConquer, EntityID: 1, Transition: models.TransitionConquer, DetectedAt: now},
		{Key: models.OwnershipKey(models.KindConquer, "nl90", 2, now, 10, 11), World: "nl90", Kind: models.KindConquer, EntityID: 2, Transition: models.TransitionConquer, DetectedAt: now.Add(time.Second)},
	}
	if _, err := h.db.Commit(context.Background(), &database.CycleResult{World: "nl90", Kind: models.KindConquer, Events: events}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	status, env := h.do(t, http.MethodGet, "/api/v1/events?world=nl90&kind=conquer&limit=1", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, error = %+v", status, env.Error)
	}
	var entries []models.JournalEntry
	decodeData(t, env, &entries)
	if len(entries) != 1 || entries[0].EntityID != 2 || entries[0].Status != models.EventPending {
		t.Errorf("entries = %+v, want newest pending entry", entries)
	}

	for _, query := range []string{"kind=barracks", "limit=0", "limit=x", "status=lost", "world=..."} {
		if status, _ := h.do(t, http.MethodGet, "/api/v1/events?"+query, nil); status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, status)
		}
	}
}

func TestStream_ReceivesDeliveries(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{JWTSecret: testSecret})
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/v1/stream"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("stream accepted a connection without a token")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated dial response = %v, err = %v", resp, err)
	}

	header := http.Header{"Authorization": []string{"Bearer " + h.token}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.GetClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.hub.OnDelivery(models.Delivery{Destination: "d1", Sink: models.SinkLog, Event: models.Event{World: "nl90", Kind: models.KindConquer}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var msg struct {
		Type string          `json:"type"`
		Data models.Delivery `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if msg.Type != ws.MessageTypeDelivery || msg.Data.Destination != "d1" {
		t.Errorf("message = %+v", msg)
	}
}

func TestStream_RejectsForeignOrigin(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{CORSOrigins: []string{"https://admin.example.com"}})
	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/v1/stream"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://evil.example.com"}})
	if err == nil {
		t.Fatal("foreign origin was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v", resp)
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newAPIHarness(t, config.SecurityConfig{})
	status, env := h.do(t, http.MethodGet, "/api/v2/nothing", nil)
	if status != http.StatusNotFound || env.Status != "error" {
		t.Errorf("status = %d, env = %+v", status, env)
	}
}
