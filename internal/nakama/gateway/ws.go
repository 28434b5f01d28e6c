package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/bdobrica/nakama/common/trace"
	"github.com/bdobrica/nakama/internal/nakama/room"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

const (
	maxFrameBytes = 8 << 10
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

// handleWS upgrades GET /ws?room=<id>&user=<id>&name=<display name> and
// relays chat frames for the lifetime of the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID, userID := q.Get("room"), q.Get("user")
	name := strings.TrimSpace(q.Get("name"))
	if roomID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "room and user are required")
		return
	}
	if name == "" {
		name = userID
	}
	if _, err := s.cfg.Rooms.GetRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("gateway: websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, roomID: roomID, userID: userID, name: name}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	s.cfg.Registry.Join(ctx, roomID, userID, name)
	s.hub.add(c)
	s.hub.broadcast(roomID, Frame{Type: FrameJoined, User: name, UserID: userID})
	s.logger.Info("gateway: client connected", "room_id", roomID, "user_id", userID)

	defer func() {
		s.hub.remove(c)
		conn.Close()
		s.cfg.Registry.Leave(roomID, userID)
		s.hub.broadcast(roomID, Frame{Type: FrameLeft, User: name, UserID: userID})
		s.logger.Info("gateway: client disconnected", "room_id", roomID, "user_id", userID)
	}()

	go s.keepAlive(ctx, c)
	s.readLoop(ctx, c)
}

// keepAlive pings the peer until ctx is done.
func (s *Server) keepAlive(ctx context.Context, c *client) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop handles one frame at a time. A message is fully processed, reply
// included, before the next frame from the same connection is read.
func (s *Server) readLoop(ctx context.Context, c *client) {
	limiter := rate.NewLimiter(s.cfg.MessageRate, s.cfg.MessageBurst)

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("gateway: read failed", "room_id", c.roomID, "user_id", c.userID, "err", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if f.Type != FrameMessage {
			c.send(Frame{Type: FrameError, Error: "unsupported frame type: " + f.Type})
			continue
		}
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		if !limiter.Allow() {
			c.send(Frame{Type: FrameError, Error: "rate limit exceeded"})
			continue
		}
		s.relay(ctx, c, text)
	}
}

// relay echoes the message to the room, runs the pipeline and broadcasts
// the teammate's reply, if any.
func (s *Server) relay(ctx context.Context, c *client, text string) {
	ctx, traceID := trace.Ensure(ctx)
	s.hub.broadcast(c.roomID, Frame{Type: FrameMessage, User: c.name, UserID: c.userID, Text: text})

	reply, ok := s.cfg.Pipeline.HandleMessage(ctx, room.Inbound{
		RoomID:      c.roomID,
		SpeakerID:   c.userID,
		DisplayName: c.name,
		Text:        text,
		Typing: func(_ context.Context, typing bool) {
			s.hub.broadcast(c.roomID, Frame{Type: FrameTyping, Typing: &typing})
		},
	})
	if !ok {
		s.logger.Debug("gateway: no reply", "room_id", c.roomID, "trace_id", traceID)
		return
	}
	s.hub.broadcast(c.roomID, Frame{
		Type:   FrameMessage,
		User:   reply.DisplayName,
		UserID: reply.SpeakerID,
		Text:   reply.Text,
	})
}
