package matrix

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bdobrica/nakama/internal/nakama/room"
)

// Sender is the outbound side of the Matrix client.
type Sender interface {
	SendText(ctx context.Context, roomID, text string) error
	SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Pipeline handles one inbound message.
type Pipeline interface {
	HandleMessage(ctx context.Context, in room.Inbound) (room.Reply, bool)
}

// Names caches display names between restarts.
type Names interface {
	SaveDisplayName(ctx context.Context, userID, displayName string) error
	DisplayName(ctx context.Context, userID string) (string, error)
}

var (
	_ Sender  = (*Client)(nil)
	_ Handler = (*Bridge)(nil)
)

// typingTimeout bounds the indicator in case the "stop typing" call is lost.
const typingTimeout = 10 * time.Second

// queueDepth is the per-room backlog before the sync loop blocks.
const queueDepth = 32

// BridgeConfig wires a Bridge.
type BridgeConfig struct {
	Sender   Sender
	Pipeline Pipeline
	Registry *room.Registry
	Names    Names
	Logger   *slog.Logger
}

// Bridge connects Matrix rooms to the pipeline. Each room gets its own
// worker so a slow reply in one room never delays another, while messages
// within a room keep their order.
type Bridge struct {
	cfg    BridgeConfig
	logger *slog.Logger
	ctx    context.Context

	mu     sync.Mutex
	queues map[string]chan Message
	wg     sync.WaitGroup
}

// NewBridge creates a Bridge whose workers live until ctx is done.
func NewBridge(ctx context.Context, cfg BridgeConfig) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		queues: make(map[string]chan Message),
	}
}

// OnMessage queues m for its room's worker.
func (b *Bridge) OnMessage(_ context.Context, m Message) {
	b.mu.Lock()
	q, ok := b.queues[m.RoomID]
	if !ok {
		q = make(chan Message, queueDepth)
		b.queues[m.RoomID] = q
		b.wg.Add(1)
		go b.work(q)
	}
	b.mu.Unlock()

	select {
	case q <- m:
	case <-b.ctx.Done():
	}
}

// OnMembership mirrors room membership into the registry.
func (b *Bridge) OnMembership(ctx context.Context, m Membership) {
	if m.Joined {
		name := m.DisplayName
		if name == "" {
			name = b.displayName(ctx, m.UserID)
		} else if b.cfg.Names != nil {
			if err := b.cfg.Names.SaveDisplayName(ctx, m.UserID, name); err != nil {
				b.logger.Warn("matrix: failed to cache display name", "user_id", m.UserID, "err", err)
			}
		}
		if b.cfg.Registry != nil {
			b.cfg.Registry.Join(ctx, m.RoomID, m.UserID, name)
		}
		return
	}
	if b.cfg.Registry != nil {
		b.cfg.Registry.Leave(m.RoomID, m.UserID)
	}
}

// Wait blocks until every room worker has exited.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) work(q chan Message) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case m := <-q:
			b.handle(b.ctx, m)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, m Message) {
	in := room.Inbound{
		RoomID:      m.RoomID,
		SpeakerID:   m.SenderID,
		DisplayName: b.displayName(ctx, m.SenderID),
		Text:        m.Body,
		Timestamp:   m.Timestamp,
		Typing: func(ctx context.Context, typing bool) {
			if err := b.cfg.Sender.SetTyping(ctx, m.RoomID, typing, typingTimeout); err != nil {
				b.logger.Debug("matrix: typing indicator failed", "room_id", m.RoomID, "err", err)
			}
		},
	}
	reply, ok := b.cfg.Pipeline.HandleMessage(ctx, in)
	if !ok {
		return
	}
	if err := b.cfg.Sender.SendText(ctx, m.RoomID, reply.Text); err != nil {
		b.logger.Error("matrix: failed to deliver reply",
			"room_id", m.RoomID, "trace_id", reply.TraceID, "err", err)
	}
}

// displayName resolves a user's name from the cache, then the homeserver
// profile. The user ID is the last resort.
func (b *Bridge) displayName(ctx context.Context, userID string) string {
	if b.cfg.Names != nil {
		if name, err := b.cfg.Names.DisplayName(ctx, userID); err == nil && name != "" {
			return name
		}
	}
	name, err := b.cfg.Sender.DisplayName(ctx, userID)
	if err != nil || name == "" {
		if err != nil {
			b.logger.Debug("matrix: profile lookup failed", "user_id", userID, "err", err)
		}
		return userID
	}
	if b.cfg.Names != nil {
		if err := b.cfg.Names.SaveDisplayName(ctx, userID, name); err != nil {
			b.logger.Warn("matrix: failed to cache display name", "user_id", userID, "err", err)
		}
	}
	return name
}
