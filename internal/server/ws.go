package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/sessions"
	"github.com/parley-ai/parley/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
	wsSendBuffer      = 64
)

// inFrame is one client-to-server message.
type inFrame struct {
	Type string `json:"type"`

	// message / stop / attach fields.
	SessionID string `json:"session_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Text      string `json:"text,omitempty"`

	// session.create fields.
	Providers []string `json:"providers,omitempty"`
	Sources   []string `json:"sources,omitempty"`

	// approval / input fields.
	CorrelationID string         `json:"correlation_id,omitempty"`
	Approved      bool           `json:"approved,omitempty"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// outFrame is one server-to-client message.
type outFrame struct {
	Type    string          `json:"type"`
	Event   *models.Event   `json:"event,omitempty"`
	Session *models.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// client is one authenticated websocket connection. It may attach to any
// number of sessions it owns; their events funnel into its send queue.
type client struct {
	core     *Core
	identity models.Identity
	conn     *websocket.Conn
	logger   *slog.Logger

	send chan outFrame
	done chan struct{}
	sink registry.EventSink

	// attached tracks sessions this connection registered a sink for.
	attached map[string]bool
}

func newClient(core *Core, identity models.Identity, conn *websocket.Conn, logger *slog.Logger) *client {
	c := &client{
		core:     core,
		identity: identity,
		conn:     conn,
		logger:   logger.With("component", "ws", "subject", identity.Subject),
		send:     make(chan outFrame, wsSendBuffer),
		done:     make(chan struct{}),
		attached: map[string]bool{},
	}
	c.sink = registry.NewCallbackSink(func(ctx context.Context, e models.Event) {
		event := e
		select {
		case c.send <- outFrame{Type: "event", Event: &event}:
		default:
			// Slow client; drop rather than stall the core.
		}
	})
	return c
}

func (c *client) readLoop(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame inFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(outFrame{Type: "error", Error: "malformed frame"})
			continue
		}
		c.handle(ctx, &frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	for sessionID := range c.attached {
		c.core.Events.Unregister(sessionID, c.sink)
	}
	close(c.done)
	_ = c.conn.Close()
}

func (c *client) reply(frame outFrame) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) handle(ctx context.Context, frame *inFrame) {
	switch frame.Type {
	case "session.create":
		c.createSession(ctx, frame)
	case "session.attach":
		c.attachSession(ctx, frame)
	case "message":
		c.message(ctx, frame)
	case "approval":
		c.core.Gate.Resolve(models.ApprovalResponse{
			CorrelationID: frame.CorrelationID,
			Approved:      frame.Approved,
			Arguments:     frame.Arguments,
			Reason:        frame.Reason,
		})
	case "input":
		c.core.Prompts.Answer(frame.CorrelationID, frame.Text)
	case "stop":
		if _, err := c.ownedSession(ctx, frame.SessionID); err != nil {
			c.reply(outFrame{Type: "error", Error: err.Error()})
			return
		}
		c.core.Tracker.Runtime(frame.SessionID).Cancel()
	case "session.close":
		c.closeSession(ctx, frame)
	default:
		c.reply(outFrame{Type: "error", Error: "unknown frame type " + frame.Type})
	}
}

func (c *client) createSession(ctx context.Context, frame *inFrame) {
	session := &models.Session{
		Owner:     c.identity,
		Providers: frame.Providers,
		Sources:   frame.Sources,
	}
	if err := c.core.Store.Create(ctx, session); err != nil {
		c.reply(outFrame{Type: "error", Error: "create session failed"})
		return
	}
	c.attach(session.ID)
	c.reply(outFrame{Type: "session", Session: session})
}

func (c *client) attachSession(ctx context.Context, frame *inFrame) {
	session, err := c.ownedSession(ctx, frame.SessionID)
	if err != nil {
		c.reply(outFrame{Type: "error", Error: err.Error()})
		return
	}
	c.attach(session.ID)
	c.reply(outFrame{Type: "session", Session: session})
}

// closeSession destroys a session: any running work is cancelled, runtime
// state is dropped, and the record is deleted.
func (c *client) closeSession(ctx context.Context, frame *inFrame) {
	session, err := c.ownedSession(ctx, frame.SessionID)
	if err != nil {
		c.reply(outFrame{Type: "error", Error: err.Error()})
		return
	}

	c.core.Tracker.Runtime(session.ID).Cancel()
	c.core.Tracker.Forget(session.ID)
	c.core.Events.Unregister(session.ID, c.sink)
	delete(c.attached, session.ID)

	if err := c.core.Store.Delete(ctx, session.ID); err != nil {
		c.logger.Warn("session delete failed", "session_id", session.ID, "error", err)
	}
	c.reply(outFrame{Type: "session", Session: session})
}

func (c *client) attach(sessionID string) {
	c.core.Events.Register(sessionID, c.sink)
	c.attached[sessionID] = true
}

func (c *client) message(ctx context.Context, frame *inFrame) {
	session, err := c.ownedSession(ctx, frame.SessionID)
	if err != nil {
		c.reply(outFrame{Type: "error", Error: err.Error()})
		return
	}
	if !c.attached[session.ID] {
		c.attach(session.ID)
	}

	mode := models.RunMode(frame.Mode)
	if frame.Mode == "" {
		mode = models.ModePlain
	}

	// The reply reaches the client as a chat event through the sink; the
	// turn must not block the read loop.
	go func() {
		if _, err := c.core.Dispatcher.HandleMessage(context.WithoutCancel(ctx), session, mode, frame.Text); err != nil {
			c.logger.Warn("turn failed", "session_id", session.ID, "error", err)
		}
	}()
}

// ownedSession loads a session and enforces that this connection's
// identity owns it.
func (c *client) ownedSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := c.core.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, sessions.ErrNotFound
	}
	if session.Owner.Subject != c.identity.Subject {
		return nil, sessions.ErrNotFound
	}
	return session, nil
}
