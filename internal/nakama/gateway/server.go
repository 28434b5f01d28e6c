// Package gateway is the browser-facing transport: a WebSocket endpoint for
// room chat, a small JSON API for rooms, personas and tasks, and the
// /health and /status probes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/bdobrica/nakama/common/trace"
	"github.com/bdobrica/nakama/common/version"
	"github.com/bdobrica/nakama/internal/nakama/personality"
	"github.com/bdobrica/nakama/internal/nakama/room"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

// RoomStore is the slice of the store the API needs.
type RoomStore interface {
	CreateRoom(ctx context.Context, name string) (*store.Room, error)
	GetRoom(ctx context.Context, id string) (*store.Room, error)
	ListRooms(ctx context.Context) ([]*store.Room, error)
	RoomCount(ctx context.Context) (int, error)
}

// Pipeline handles one inbound chat message.
type Pipeline interface {
	HandleMessage(ctx context.Context, in room.Inbound) (room.Reply, bool)
}

var _ RoomStore = (*store.Store)(nil)

// Config wires a Server.
type Config struct {
	Addr     string
	Rooms    RoomStore
	Registry *room.Registry
	Pipeline Pipeline
	Personas *personality.Service
	Logger   *slog.Logger

	// MessageRate and MessageBurst cap chat messages per connection.
	// Default: 1 per second, burst 5.
	MessageRate  rate.Limit
	MessageBurst int
	// APIRate and APIBurst cap JSON API calls per client address.
	// A zero rate disables the limit.
	APIRate  rate.Limit
	APIBurst int

	// AllowedOrigins lists extra browser origins allowed to open chat
	// sockets, e.g. "https://app.example.com". "*" allows any origin.
	// Same-origin requests and clients that send no Origin are always
	// allowed.
	AllowedOrigins []string
	// CheckOrigin replaces the AllowedOrigins check when set.
	CheckOrigin func(r *http.Request) bool
}

// Server serves the gateway. Run it with Start or mount it as an
// http.Handler.
type Server struct {
	cfg       Config
	logger    *slog.Logger
	mux       *http.ServeMux
	hub       *hub
	upgrader  websocket.Upgrader
	apiLimit  *keyedLimiter
	startedAt time.Time
	server    *http.Server
}

// New creates a Server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MessageRate == 0 {
		cfg.MessageRate = 1
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 5
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = originChecker(cfg.AllowedOrigins)
	}
	if cfg.Personas == nil {
		cfg.Personas = personality.NewService(personality.ServiceConfig{Logger: cfg.Logger})
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.Logger,
		mux:       http.NewServeMux(),
		hub:       newHub(cfg.Logger),
		apiLimit:  newKeyedLimiter(cfg.APIRate, cfg.APIBurst),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.Handle("GET /rooms", s.limited(s.handleListRooms))
	s.mux.Handle("POST /rooms", s.limited(s.handleCreateRoom))
	s.mux.Handle("GET /rooms/{id}", s.limited(s.handleGetRoom))
	s.mux.Handle("PUT /rooms/{id}/personality", s.limited(s.handleUpdatePersonality))
	s.mux.Handle("PUT /rooms/{id}/task", s.limited(s.handleSetTask))
	s.mux.Handle("GET /personas", s.limited(s.handleListPersonas))
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens in the background and shuts down when ctx is done. It
// returns once the listener is open.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", s.cfg.Addr, err)
	}
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the HTTP server down. Hijacked WebSocket connections are not
// tracked by http.Server and close when their peers go away.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("gateway shutdown error", "err", err)
	}
}

// limited applies the per-address API rate limit and tags the request with
// a trace ID, echoed back in the response headers.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, traceID := trace.FromRequest(r)
		w.Header().Set(trace.Header, traceID)
		if !s.apiLimit.Allow(clientAddr(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(w, r.WithContext(ctx))
	})
}

// originChecker accepts requests without an Origin header, same-origin
// requests and the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ── Health ────────────────────────────────────────────────────────────────

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	BuildTime   string    `json:"build_time"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSecs  float64   `json:"uptime_seconds"`
	RoomCount   int       `json:"room_count"`
	ActiveRooms int       `json:"active_rooms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  s.startedAt,
		UptimeSecs: time.Since(s.startedAt).Seconds(),
	}
	if s.cfg.Rooms != nil {
		if n, err := s.cfg.Rooms.RoomCount(r.Context()); err == nil {
			resp.RoomCount = n
		}
	}
	if s.cfg.Registry != nil {
		resp.ActiveRooms = s.cfg.Registry.Active()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Helpers ───────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("gateway: failed to encode JSON response", "err", err)
	}
}
