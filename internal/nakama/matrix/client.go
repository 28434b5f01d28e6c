// Package matrix seats the teammate in Matrix rooms: it syncs with the
// homeserver, feeds room messages into the pipeline and posts replies with a
// typing indicator.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/nakama/common/retry"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on start. Messages from other rooms are ignored.
	Rooms []string
	// DB persists the sync token. Nil falls back to mautrix's in-memory
	// store, which replays history on every restart.
	DB     *sql.DB
	Logger *slog.Logger
}

// Message is a text message received from a room.
type Message struct {
	RoomID    string
	SenderID  string
	Body      string
	Timestamp time.Time
}

// Membership is a join or leave observed in a room.
type Membership struct {
	RoomID      string
	UserID      string
	DisplayName string
	Joined      bool
}

// Handler receives room traffic from the sync loop. Implementations must not
// block for long; the sync loop waits for them.
type Handler interface {
	OnMessage(ctx context.Context, m Message)
	OnMembership(ctx context.Context, m Membership)
}

// Client wraps the mautrix client.
type Client struct {
	client  *mautrix.Client
	config  Config
	logger  *slog.Logger
	started time.Time
	stopCh  chan struct{}
	handler Handler
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	c := &Client{
		client: client,
		config: cfg,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}
	if cfg.DB != nil {
		client.Store = NewDBSyncStore(cfg.DB)
		c.logger.Info("matrix: using persistent sync store")
	} else {
		c.logger.Warn("matrix: no DB configured, using in-memory sync store (history will replay on restart)")
	}
	return c, nil
}

// Start joins the configured rooms and syncs in the background until Stop
// is called or ctx is done.
func (c *Client) Start(ctx context.Context, handler Handler) error {
	c.handler = handler
	c.started = time.Now()

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("matrix: unexpected syncer type %T", c.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)

	for _, roomID := range c.config.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(roomID)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", roomID, err)
		}
	}

	go c.syncLoop(ctx)
	return nil
}

// syncLoop restarts the sync with exponential back-off after transient
// homeserver errors.
func (c *Client) syncLoop(ctx context.Context) {
	backoff := retry.Backoff{Min: 2 * time.Second, Max: 5 * time.Minute, Jitter: 0.1}
	for {
		err := c.client.SyncWithContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		delay := backoff.Next()
		c.logger.Error("matrix: sync stopped; reconnecting", "err", err, "backoff", delay)
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// Stop stops syncing.
func (c *Client) Stop() {
	select {
	case <-c.stopCh:
		return
	default:
	}
	close(c.stopCh)
	c.client.StopSync()
}

// SendText posts a plain-text message.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	if _, err := c.client.SendText(ctx, id.RoomID(roomID), text); err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// SetTyping toggles the typing indicator.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	if _, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout); err != nil {
		return fmt.Errorf("matrix: set typing: %w", err)
	}
	return nil
}

// DisplayName fetches a user's profile name.
func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := c.client.GetProfile(ctx, id.UserID(userID))
	if err != nil {
		return "", fmt.Errorf("matrix: get profile: %w", err)
	}
	return profile.DisplayName, nil
}

// UserID returns the bot's own user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}

func (c *Client) watched(roomID id.RoomID) bool {
	return slices.Contains(c.config.Rooms, roomID.String())
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.config.UserID) || !c.watched(evt.RoomID) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	ts := time.UnixMilli(evt.Timestamp)
	// Backlog delivered on first sync predates this process.
	if ts.Before(c.started) {
		return
	}
	if c.handler != nil {
		c.handler.OnMessage(ctx, Message{
			RoomID:    evt.RoomID.String(),
			SenderID:  evt.Sender.String(),
			Body:      msg.Body,
			Timestamp: ts,
		})
	}
}

func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	if !c.watched(evt.RoomID) || evt.StateKey == nil {
		return
	}
	userID := *evt.StateKey
	if userID == c.config.UserID {
		return
	}
	member := evt.Content.AsMember()
	if member == nil {
		return
	}
	var joined bool
	switch member.Membership {
	case event.MembershipJoin:
		joined = true
	case event.MembershipLeave, event.MembershipBan:
		joined = false
	default:
		return
	}
	if c.handler != nil {
		c.handler.OnMembership(ctx, Membership{
			RoomID:      evt.RoomID.String(),
			UserID:      userID,
			DisplayName: member.Displayname,
			Joined:      joined,
		})
	}
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("matrix: join refused or already a member, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
