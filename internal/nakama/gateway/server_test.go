package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/bdobrica/nakama/common/trace"
	"github.com/bdobrica/nakama/internal/nakama/gateway"
	"github.com/bdobrica/nakama/internal/nakama/personality"
	"github.com/bdobrica/nakama/internal/nakama/room"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

// echoPipeline replies to every message except "quiet".
type echoPipeline struct{}

func (echoPipeline) HandleMessage(ctx context.Context, in room.Inbound) (room.Reply, bool) {
	if in.Text == "quiet" {
		return room.Reply{}, false
	}
	in.Typing(ctx, true)
	in.Typing(ctx, false)
	return room.Reply{RoomID: in.RoomID, SpeakerID: "nakama", DisplayName: "Sam", Text: "re: " + in.Text}, true
}

type fixture struct {
	srv      *gateway.Server
	store    *store.Store
	registry *room.Registry
}

func newFixture(t *testing.T, cfg gateway.Config) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "gateway-test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	presets, err := personality.ParsePresets([]byte("personas:\n  Skeptic:\n    traits:\n      agreeableness: low\n"))
	if err != nil {
		t.Fatalf("ParsePresets: %v", err)
	}
	personas := personality.NewService(personality.ServiceConfig{Store: s, Presets: presets})
	reg := room.NewRegistry(room.RegistryConfig{Personas: personas, Tasks: s})

	cfg.Rooms = s
	cfg.Registry = reg
	cfg.Personas = personas
	if cfg.Pipeline == nil {
		cfg.Pipeline = echoPipeline{}
	}
	return &fixture{srv: gateway.New(cfg), store: s, registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t, gateway.Config{})
	f.store.CreateRoom(context.Background(), "a")

	w := f.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if resp := decode[map[string]any](t, w); resp["status"] != "ok" {
		t.Errorf("health status = %v", resp["status"])
	}

	w = f.do(t, http.MethodGet, "/status", "")
	resp := decode[map[string]any](t, w)
	if int(resp["room_count"].(float64)) != 1 {
		t.Errorf("room_count = %v, want 1", resp["room_count"])
	}
}

func TestRoomLifecycle(t *testing.T) {
	f := newFixture(t, gateway.Config{})

	w := f.do(t, http.MethodPost, "/rooms", `{"name":"Desert team","task":"Rank the items.","preset":"Skeptic"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	created := decode[map[string]any](t, w)
	id := created["id"].(string)
	if p := created["personality"].(map[string]any); p["name"] != "Skeptic" {
		t.Errorf("persona = %v, want preset", p["name"])
	}

	req := httptest.NewRequest(http.MethodGet, "/rooms/"+id, nil)
	req.Header.Set(trace.Header, "client-trace")
	w = httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	if h := w.Header().Get(trace.Header); h != "client-trace" {
		t.Errorf("trace header = %q", h)
	}
	got := decode[map[string]any](t, w)
	if task := got["task"].(map[string]any); task["description"] != "Rank the items." {
		t.Errorf("task = %v", task)
	}

	w = f.do(t, http.MethodPut, "/rooms/"+id+"/task", `{"title":"Moon","description":"Rank the NASA items."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set task = %d: %s", w.Code, w.Body.String())
	}
	stored, _ := f.store.LoadTask(context.Background(), id)
	if stored == nil || stored.Title != "Moon" {
		t.Errorf("stored task = %+v", stored)
	}

	w = f.do(t, http.MethodGet, "/rooms", "")
	if list := decode[[]map[string]any](t, w); len(list) != 1 {
		t.Errorf("rooms = %d, want 1", len(list))
	}
}

func TestRoomErrors(t *testing.T) {
	f := newFixture(t, gateway.Config{})
	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"missing room", http.MethodGet, "/rooms/nope", "", http.StatusNotFound},
		{"unknown preset", http.MethodPost, "/rooms", `{"name":"x","preset":"Nobody"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/rooms", `{"name":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/rooms", `{"colour":"red"}`, http.StatusBadRequest},
		{"personality on missing room", http.MethodPut, "/rooms/nope/personality", `{}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdatePersonality(t *testing.T) {
	f := newFixture(t, gateway.Config{})
	rm, _ := f.store.CreateRoom(context.Background(), "r")

	w := f.do(t, http.MethodPut, "/rooms/"+rm.ID+"/personality",
		`{"name":"Sam","traits":{"agreeableness":{"trust":"high"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}
	stored, err := f.store.LoadPersonality(context.Background(), rm.ID)
	if err != nil || stored == nil {
		t.Fatalf("LoadPersonality = %v, %v", stored, err)
	}
	if stored.Name != "Sam" || stored.Traits[personality.Agreeableness].LevelOf("trust") != personality.High {
		t.Errorf("stored persona = %s / trust %s", stored.Name, stored.Traits[personality.Agreeableness].LevelOf("trust"))
	}

	w = f.do(t, http.MethodPut, "/rooms/"+rm.ID+"/personality", `{"traits":{"agreeableness":{"trust":"extreme"}}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid edits = %d, want 400", w.Code)
	}

	w = f.do(t, http.MethodPut, "/rooms/"+rm.ID+"/personality?preset=Skeptic", "")
	if p := decode[map[string]any](t, w); p["name"] != "Skeptic" {
		t.Errorf("preset swap = %v", p["name"])
	}
}

func TestAPIRateLimit(t *testing.T) {
	f := newFixture(t, gateway.Config{APIRate: rate.Every(time.Hour), APIBurst: 2})
	for i := 0; i < 2; i++ {
		if w := f.do(t, http.MethodGet, "/rooms", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	if w := f.do(t, http.MethodGet, "/rooms", ""); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must not be rate limited, got %d", w.Code)
	}
}

// ── WebSocket ─────────────────────────────────────────────────────────────

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", query, err, code)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) gateway.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f gateway.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if f.Type == want {
			return f
		}
	}
}

func TestWebSocketChat(t *testing.T) {
	f := newFixture(t, gateway.Config{})
	rm, _ := f.store.CreateRoom(context.Background(), "r")
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	alice := dial(t, ts, "room="+rm.ID+"&user=u1&name=Alice")
	readUntil(t, alice, gateway.FrameJoined)

	if err := alice.WriteJSON(gateway.Frame{Type: gateway.FrameMessage, Text: "water first?"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	echo := readUntil(t, alice, gateway.FrameMessage)
	if echo.User != "Alice" || echo.Text != "water first?" {
		t.Errorf("echo = %+v", echo)
	}
	typing := readUntil(t, alice, gateway.FrameTyping)
	if typing.Typing == nil || !*typing.Typing {
		t.Errorf("typing = %+v", typing)
	}
	reply := readUntil(t, alice, gateway.FrameMessage)
	if reply.User != "Sam" || reply.Text != "re: water first?" {
		t.Errorf("reply = %+v", reply)
	}

	r, ok := f.registry.Lookup(rm.ID)
	if !ok || r.DisplayName("u1") != "Alice" {
		t.Error("connection not registered as a room member")
	}

	// A persona edit over HTTP reaches connected clients.
	req := httptest.NewRequest(http.MethodPut, "/rooms/"+rm.ID+"/personality", bytes.NewBufferString(`{"name":"Kai"}`))
	f.srv.ServeHTTP(httptest.NewRecorder(), req)
	upd := readUntil(t, alice, gateway.FramePersonalityUpdated)
	if p, _ := upd.Personality.(map[string]any); p["name"] != "Kai" {
		t.Errorf("personality_updated = %+v", upd.Personality)
	}
}

func TestWebSocketRejects(t *testing.T) {
	f := newFixture(t, gateway.Config{})
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	for _, q := range []string{"room=missing&user=u1", "user=u1"} {
		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + q
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Errorf("%s: dial succeeded, want rejection", q)
			continue
		}
		if resp == nil || resp.StatusCode < 400 {
			t.Errorf("%s: response = %v", q, resp)
		}
	}
}

func TestWebSocketOrigin(t *testing.T) {
	f := newFixture(t, gateway.Config{AllowedOrigins: []string{"https://app.example.com"}})
	rm, _ := f.store.CreateRoom(context.Background(), "r")
	ts := httptest.NewServer(f.srv)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?room=" + rm.ID + "&user=u1"

	tests := []struct {
		origin string
		ok     bool
	}{
		{"", true},
		{ts.URL, true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.origin != "" {
			h.Set("Origin", tt.origin)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(url, h)
		if tt.ok {
			if err != nil {
				t.Errorf("origin %q: dial: %v", tt.origin, err)
				continue
			}
			conn.Close()
			continue
		}
		if err == nil {
			conn.Close()
			t.Errorf("origin %q: dial succeeded, want rejection", tt.origin)
			continue
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("origin %q: response = %v, want 403", tt.origin, resp)
		}
	}
}

func TestWebSocketMessageRateLimit(t *testing.T) {
	f := newFixture(t, gateway.Config{MessageRate: rate.Every(time.Hour), MessageBurst: 1})
	rm, _ := f.store.CreateRoom(context.Background(), "r")
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	conn := dial(t, ts, "room="+rm.ID+"&user=u1")
	readUntil(t, conn, gateway.FrameJoined)

	conn.WriteJSON(gateway.Frame{Type: gateway.FrameMessage, Text: "quiet"})
	conn.WriteJSON(gateway.Frame{Type: gateway.FrameMessage, Text: "again"})
	if e := readUntil(t, conn, gateway.FrameError); e.Error != "rate limit exceeded" {
		t.Errorf("error frame = %+v", e)
	}
}
