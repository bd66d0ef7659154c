package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chattrix-service/internal/models"
	"chattrix-service/internal/observability"
	"chattrix-service/internal/rooms"
)

type connState int

const (
	stateConnecting connState = iota
	stateAwaitingJoin
	stateJoined
	stateClosed
)

const sendBuffer = 64

// Client is the per-connection state machine. All connection-scoped fields
// are owned by this struct and never mutated from outside it. Lifecycle:
// Connecting -> AwaitingJoin -> Joined -> Closed, with Closed terminal and
// reached exactly once even under concurrent close signals.
type Client struct {
	hub      *Hub
	store    *rooms.Store
	registry *rooms.Registry
	ledger   *rooms.Ledger
	panics   *rooms.PanicController

	conn        *websocket.Conn
	idleTimeout time.Duration
	info        ConnInfo

	send chan models.WireEvent
	done chan struct{}

	mu      sync.Mutex
	state   connState
	session models.Session
	room    models.Room

	closeOnce sync.Once
}

// NewClient builds a client for an upgraded connection. The transport being
// open is itself the Connecting->AwaitingJoin transition; no round trip is
// required before the peer may send join-room.
func NewClient(hub *Hub, store *rooms.Store, registry *rooms.Registry, ledger *rooms.Ledger, panics *rooms.PanicController, conn *websocket.Conn, idleTimeout time.Duration, info ConnInfo) *Client {
	return &Client{
		hub:         hub,
		store:       store,
		registry:    registry,
		ledger:      ledger,
		panics:      panics,
		conn:        conn,
		idleTimeout: idleTimeout,
		info:        info,
		send:        make(chan models.WireEvent, sendBuffer),
		done:        make(chan struct{}),
		state:       stateAwaitingJoin,
	}
}

// enqueue hands a frame to the write pump without blocking. A client whose
// buffer is full loses the frame; sends dispatched around a close may be
// dropped.
func (c *Client) enqueue(frame models.WireEvent) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		log.Printf("ws: dropping frame conn=%s event=%s: send buffer full", c.info.ConnID, frame.Event)
	}
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ReadPump consumes inbound frames until the transport closes or the idle
// deadline passes; either path funnels into finish.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.finish(ctx, "read loop ended")

	c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws: read error conn=%s: %v", c.info.ConnID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Event == "" {
			c.enqueue(models.WireEvent{Event: "error", Data: models.ErrorEvent{Message: "malformed frame"}})
			continue
		}
		c.HandleEvent(ctx, frame.Event, frame.Data)
	}
}

// WritePump serializes outbound frames and keeps the connection alive with
// pings. It is the only goroutine that writes to the transport.
func (c *Client) WritePump() {
	pingInterval := c.idleTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// HandleEvent dispatches one inbound named event against the current state.
// Room-scoped events arriving before Joined are rejected explicitly, never
// silently dropped.
func (c *Client) HandleEvent(ctx context.Context, event string, data json.RawMessage) {
	observability.IncWSEvent(event)

	switch event {
	case "join-room":
		c.handleJoin(ctx, data)
	case "send-message":
		if !c.requireJoined("message-error") {
			return
		}
		c.handleSendMessage(ctx, data)
	case "start-typing":
		if !c.requireJoined("error") {
			return
		}
		c.handleTyping(ctx, "user-typing")
	case "stop-typing":
		if !c.requireJoined("error") {
			return
		}
		c.handleTyping(ctx, "user-stop-typing")
	case "mark-read":
		if !c.requireJoined("error") {
			return
		}
		c.handleMarkRead(ctx, data)
	case "toggle-invisible":
		if !c.requireJoined("error") {
			return
		}
		c.handleToggleInvisible(ctx, data)
	case "panic-mode":
		if !c.requireJoined("error") {
			return
		}
		c.handlePanic(ctx)
	default:
		c.enqueue(models.WireEvent{Event: "error", Data: models.ErrorEvent{Message: "unknown event"}})
	}
}

func (c *Client) requireJoined(errEvent string) bool {
	c.mu.Lock()
	joined := c.state == stateJoined
	c.mu.Unlock()
	if !joined {
		c.enqueue(models.WireEvent{Event: errEvent, Data: models.ErrorEvent{Message: "not in a room"}})
	}
	return joined
}

func (c *Client) handleJoin(ctx context.Context, data json.RawMessage) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == stateJoined {
		c.enqueue(models.WireEvent{Event: "join-error", Data: models.ErrorEvent{Message: "already in a room"}})
		return
	}
	if state == stateClosed {
		return
	}

	var req models.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" || req.Nickname == "" || req.Password == "" {
		// validation failure: the client stays in AwaitingJoin and may retry
		c.enqueue(models.WireEvent{Event: "join-error", Data: models.ErrorEvent{Message: "missing required fields"}})
		return
	}

	session, err := c.registry.Join(ctx, req.RoomID, req.Nickname, req.Password, req.SessionID)
	if err != nil {
		c.enqueue(models.WireEvent{Event: "join-error", Data: models.ErrorEvent{Message: joinErrorMessage(err)}})
		return
	}

	room, err := c.store.Lookup(ctx, req.RoomID)
	if err != nil {
		c.enqueue(models.WireEvent{Event: "join-error", Data: models.ErrorEvent{Message: rooms.GenericAuthMessage}})
		return
	}

	occupancy, err := c.store.Occupancy(ctx, req.RoomID)
	if err != nil {
		log.Printf("ws: occupancy after join room=%s: %v", req.RoomID, err)
	}

	c.mu.Lock()
	c.state = stateJoined
	c.session = session
	c.room = room
	c.mu.Unlock()

	c.hub.Subscribe(room.RoomID, c)

	c.enqueue(models.WireEvent{Event: "session-updated", Data: map[string]string{"sessionId": session.SessionID}})
	c.enqueue(models.WireEvent{Event: "room-info", Data: models.RoomInfoEvent{
		RoomID:        room.RoomID,
		Nickname:      session.Nickname,
		MaxUsers:      room.MaxUsers,
		CurrentUsers:  occupancy,
		EncryptionKey: room.EncryptionKey,
	}})
	c.hub.BroadcastExcept(room.RoomID, c, "user-joined", models.PresenceEvent{
		Nickname:  session.Nickname,
		Timestamp: time.Now(),
	})
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrIncorrectPassword):
		// not-found and bad-password are indistinguishable on purpose
		return rooms.GenericAuthMessage
	case errors.Is(err, rooms.ErrRoomFull):
		return "room is full"
	case errors.Is(err, rooms.ErrNicknameConflict):
		return "nickname already in use"
	case errors.Is(err, rooms.ErrValidation):
		return "missing required fields"
	}
	return "failed to join room, please try again"
}

func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var req models.SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Text == "" {
		c.enqueue(models.WireEvent{Event: "message-error", Data: models.ErrorEvent{Message: "message text required"}})
		return
	}

	c.mu.Lock()
	session := c.session
	room := c.room
	c.mu.Unlock()

	c.touch(ctx, session.SessionID)

	var ttl time.Duration
	if req.ExpiresAt != nil {
		ttl = time.Until(*req.ExpiresAt)
		// an elapsed expiry must not fall through to the default retention
		if ttl <= 0 {
			c.enqueue(models.WireEvent{Event: "message-error", Data: models.ErrorEvent{Message: "expiresAt must be in the future"}})
			return
		}
	}

	msg, err := c.ledger.Append(ctx, room.RoomID, session.Nickname, req.Text, req.IV, ttl)
	if err != nil {
		c.enqueue(models.WireEvent{Event: "message-error", Data: models.ErrorEvent{Message: messageErrorMessage(err)}})
		return
	}

	c.hub.Broadcast(room.RoomID, "new-message", models.NewMessageEvent{
		ID:        msg.MessageID,
		Sender:    msg.Sender,
		Text:      msg.EncryptedContent,
		IV:        msg.IV,
		Timestamp: msg.CreatedAt,
		ExpiresAt: msg.ExpiresAt,
	})
}

func messageErrorMessage(err error) string {
	switch {
	case errors.Is(err, rooms.ErrRateLimited):
		return "rate limit exceeded"
	case errors.Is(err, rooms.ErrValidation):
		return "message text required"
	}
	return "failed to send message, please try again"
}

func (c *Client) handleTyping(ctx context.Context, event string) {
	c.mu.Lock()
	session := c.session
	room := c.room
	c.mu.Unlock()

	c.touch(ctx, session.SessionID)
	c.hub.BroadcastExcept(room.RoomID, c, event, models.TypingEvent{Nickname: session.Nickname})
}

func (c *Client) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var req struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.MessageID == "" {
		c.enqueue(models.WireEvent{Event: "error", Data: models.ErrorEvent{Message: "messageId required"}})
		return
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	c.touch(ctx, session.SessionID)
	// mark-read has no reply event
	if err := c.ledger.MarkRead(ctx, req.MessageID, session.Nickname); err != nil {
		log.Printf("ws: mark read message=%s: %v", req.MessageID, err)
	}
}

func (c *Client) handleToggleInvisible(ctx context.Context, data json.RawMessage) {
	var req struct {
		IsInvisible bool `json:"isInvisible"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		c.enqueue(models.WireEvent{Event: "error", Data: models.ErrorEvent{Message: "isInvisible required"}})
		return
	}

	c.mu.Lock()
	session := c.session
	room := c.room
	c.mu.Unlock()

	c.touch(ctx, session.SessionID)
	if err := c.registry.SetInvisible(ctx, session.SessionID, req.IsInvisible); err != nil {
		log.Printf("ws: toggle invisible session=%s: %v", session.SessionID, err)
		return
	}

	c.mu.Lock()
	c.session.IsInvisible = req.IsInvisible
	c.mu.Unlock()

	c.hub.BroadcastExcept(room.RoomID, c, "user-invisible", models.InvisibleEvent{
		Nickname:    session.Nickname,
		IsInvisible: req.IsInvisible,
	})
}

func (c *Client) handlePanic(ctx context.Context) {
	c.mu.Lock()
	session := c.session
	room := c.room
	c.mu.Unlock()

	c.touch(ctx, session.SessionID)
	if _, err := c.panics.Trigger(ctx, room.RoomID); err != nil {
		log.Printf("ws: panic trigger room=%s: %v", room.RoomID, err)
		c.enqueue(models.WireEvent{Event: "error", Data: models.ErrorEvent{Message: "failed to trigger panic mode"}})
	}
}

func (c *Client) touch(ctx context.Context, sessionID string) {
	if err := c.registry.Touch(ctx, sessionID); err != nil {
		log.Printf("ws: touch session=%s: %v", sessionID, err)
	}
}

// finish tears the connection down exactly once: deactivate the session,
// leave the room topic, notify peers, release resources. Explicit close and
// idle timeout both land here.
func (c *Client) finish(ctx context.Context, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		wasJoined := c.state == stateJoined
		session := c.session
		room := c.room
		c.state = stateClosed
		c.mu.Unlock()

		if wasJoined {
			c.hub.Unsubscribe(room.RoomID, c)
			if err := c.registry.Deactivate(ctx, session.SessionID); err != nil {
				log.Printf("ws: deactivate session=%s: %v", session.SessionID, err)
			}
			c.hub.Broadcast(room.RoomID, "user-left", models.PresenceEvent{
				Nickname:  session.Nickname,
				Timestamp: time.Now(),
			})
		}

		close(c.done)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.connections", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: map[string]interface{}{
				"conn_id":     c.info.ConnID,
				"ip":          c.info.IP,
				"duration_ms": time.Since(c.info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
		}, observability.BuildHeaders(c.info.RequestID, c.info.TraceID))
	})
}
