package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame types exchanged over the WebSocket.
const (
	FrameMessage            = "message"
	FrameTyping             = "typing"
	FramePersonalityUpdated = "personality_updated"
	FrameJoined             = "joined"
	FrameLeft               = "left"
	FrameError              = "error"
)

// Frame is one JSON message on the WebSocket. Inbound frames use Type and
// Text; the other fields are set on outbound frames as relevant.
type Frame struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	User        string `json:"user,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Typing      *bool  `json:"typing,omitempty"`
	Personality any    `json:"personality,omitempty"`
	Error       string `json:"error,omitempty"`
}

const writeWait = 10 * time.Second

// client is one WebSocket connection. gorilla/websocket allows a single
// concurrent writer, so every write goes through writeMu.
type client struct {
	conn   *websocket.Conn
	roomID string
	userID string
	name   string

	writeMu sync.Mutex
}

func (c *client) send(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

// hub fans frames out to every connection in a room.
type hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, rooms: make(map[string]map[*client]struct{})}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[c.roomID]
	if !ok {
		set = make(map[*client]struct{})
		h.rooms[c.roomID] = set
	}
	set[c] = struct{}{}
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.rooms[c.roomID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// connections returns how many clients are connected to roomID.
func (h *hub) connections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// broadcast sends f to every client in roomID. Write failures are logged;
// the reader side notices the broken connection and cleans up.
func (h *hub) broadcast(roomID string, f Frame) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(f); err != nil {
			h.logger.Debug("gateway: broadcast write failed",
				"room_id", roomID, "user_id", c.userID, "err", err)
		}
	}
}
