package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chattrix-service/internal/models"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startTestServer(t *testing.T, env *testEnv, idleTimeout time.Duration) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewHandler(env.hub, env.store, env.registry, env.ledger, env.panics, idleTimeout)
	router := gin.New()
	router.GET("/ws", handler.Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialServer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWire(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.WireEvent{Event: event, Data: data}))
}

func readWire(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame wireFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestConnectionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 5)
	url := startTestServer(t, env, time.Minute)

	conn := dialServer(t, url)
	sendWire(t, conn, "join-room", models.JoinRequest{
		RoomID: room.RoomID, Nickname: "alice", Password: "secret",
	})

	frame := readWire(t, conn)
	assert.Equal(t, "session-updated", frame.Event)
	frame = readWire(t, conn)
	require.Equal(t, "room-info", frame.Event)
	var info models.RoomInfoEvent
	require.NoError(t, json.Unmarshal(frame.Data, &info))
	assert.Equal(t, room.RoomID, info.RoomID)
	assert.Equal(t, room.EncryptionKey, info.EncryptionKey)

	sendWire(t, conn, "send-message", models.SendMessageRequest{Text: "ciphertext", IV: "iv"})
	frame = readWire(t, conn)
	assert.Equal(t, "new-message", frame.Event)
}

func TestIdleConnectionIsTornDownLikeAnExplicitClose(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, 5)
	const idleTimeout = 250 * time.Millisecond
	url := startTestServer(t, env, idleTimeout)

	// the watcher keeps reading, which also answers pings, so it stays alive
	watcher := dialServer(t, url)
	sendWire(t, watcher, "join-room", models.JoinRequest{
		RoomID: room.RoomID, Nickname: "bob", Password: "secret",
	})
	frames := make(chan wireFrame, 16)
	go func() {
		defer close(frames)
		for {
			var frame wireFrame
			if err := watcher.ReadJSON(&frame); err != nil {
				return
			}
			frames <- frame
		}
	}()

	waitFrame := func(event string) wireFrame {
		deadline := time.After(5 * time.Second)
		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					t.Fatalf("watcher closed while waiting for %s", event)
				}
				if frame.Event == event {
					return frame
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", event)
			}
		}
	}
	waitFrame("room-info")

	idler := dialServer(t, url)
	sendWire(t, idler, "join-room", models.JoinRequest{
		RoomID: room.RoomID, Nickname: "alice", Password: "secret",
	})
	frame := readWire(t, idler)
	require.Equal(t, "session-updated", frame.Event)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	sessionID := payload["sessionId"]
	require.NotEmpty(t, sessionID)
	// from here the idler never reads again, so it stops answering pings
	// and the read deadline on the server side lapses

	left := waitFrame("user-left")
	var presence models.PresenceEvent
	require.NoError(t, json.Unmarshal(left.Data, &presence))
	assert.Equal(t, "alice", presence.Nickname)

	require.Eventually(t, func() bool {
		session, err := env.mem.GetSession(context.Background(), sessionID)
		return err == nil && !session.IsActive
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, env.hub.Subscribers(room.RoomID))
}
