// Package matrix bridges Torii's conversation engine into Matrix rooms.
//
// Each (room, sender) pair maps to one conversation session, so two people in
// the same room keep separate pending approvals. Only configured rooms are
// served.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Torii/internal/torii/engine"
	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/session"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms is the list of room IDs where Torii accepts messages.
	Rooms []string
}

// Client wraps the mautrix client and routes room messages through the engine.
type Client struct {
	client *mautrix.Client
	cfg    Config
	engine *engine.Engine
	store  session.Store
	locker *session.Locker
	logger *slog.Logger
	stopCh chan struct{}
}

// New creates a Matrix client bound to the engine and session store.
func New(cfg Config, eng *engine.Engine, store session.Store, logger *slog.Logger) (*Client, error) {
	mc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	return &Client{
		client: mc,
		cfg:    cfg,
		engine: eng,
		store:  store,
		locker: session.NewLocker(),
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start joins the configured rooms and begins syncing in the background with
// exponential back-off reconnection. Without retries a transient homeserver
// error would silently kill the sync goroutine and leave the bot deaf to all
// new messages.
func (c *Client) Start(ctx context.Context) error {
	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	for _, roomID := range c.cfg.Rooms {
		if err := c.joinRoom(id.RoomID(roomID)); err != nil {
			return fmt.Errorf("join room %s: %w", roomID, err)
		}
	}

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			backoff = backoffMin
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				c.logger.Error("matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			return
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// servedRoom reports whether Torii is configured to answer in roomID.
func (c *Client) servedRoom(roomID string) bool {
	for _, r := range c.cfg.Rooms {
		if r == roomID {
			return true
		}
	}
	return false
}

// sessionKey derives the conversation session id for a room message.
func sessionKey(roomID id.RoomID, sender id.UserID) string {
	return roomID.String() + "/" + sender.String()
}

// handleMessage processes one incoming room message.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == id.UserID(c.cfg.UserID) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}
	if !c.servedRoom(evt.RoomID.String()) {
		return
	}

	key := sessionKey(evt.RoomID, evt.Sender)
	unlock := c.locker.Lock(key)
	defer unlock()

	sess, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Error("session load failed", "session", key, "err", err)
		c.sendNotice(evt.RoomID, "Something went wrong loading your session.")
		return
	}
	if sess == nil {
		sess = session.New(key, time.Now())
	}

	result, err := c.engine.HandleTurn(ctx, sess, strings.TrimSpace(msg.Body))
	if err != nil {
		if errors.Is(err, ops.ErrMissingHumanInput) {
			return
		}
		c.logger.Error("turn failed", "session", key, "err", err)
		c.sendNotice(evt.RoomID, "Something went wrong handling that message.")
		return
	}

	if err := c.store.Save(ctx, sess); err != nil {
		c.logger.Error("session save failed", "session", key, "err", err)
	}

	if err := c.sendText(evt.RoomID, result.Response); err != nil {
		c.logger.Error("send response failed", "room", evt.RoomID, "err", err)
	}
}

func (c *Client) sendText(roomID id.RoomID, message string) error {
	_, err := c.client.SendText(context.Background(), roomID, message)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// sendNotice sends a notice message (less intrusive than normal messages).
func (c *Client) sendNotice(roomID id.RoomID, message string) {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	if _, err := c.client.SendMessageEvent(context.Background(), roomID, event.EventMessage, &content); err != nil {
		c.logger.Error("send notice failed", "room", roomID, "err", err)
	}
}

func (c *Client) joinRoom(roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(context.Background(), roomID)
	if err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a
		// member of the room.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
