package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chattrix-service/internal/observability"
	"chattrix-service/internal/rooms"
	"chattrix-service/internal/security"
)

// Handler upgrades websocket connections and launches a client per
// connection. Joining a room happens over the socket itself, so the upgrade
// needs no credentials.
type Handler struct {
	hub         *Hub
	store       *rooms.Store
	registry    *rooms.Registry
	ledger      *rooms.Ledger
	panics      *rooms.PanicController
	idleTimeout time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, store *rooms.Store, registry *rooms.Registry, ledger *rooms.Ledger, panics *rooms.PanicController, idleTimeout time.Duration) *Handler {
	return &Handler{
		hub:         hub,
		store:       store,
		registry:    registry,
		ledger:      ledger,
		panics:      panics,
		idleTimeout: idleTimeout,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts the read and write pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chattrix-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	connID, err := security.NewID()
	if err != nil {
		conn.Close()
		return
	}

	info := ConnInfo{
		ConnID:      connID,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	client := NewClient(h.hub, h.store, h.registry, h.ledger, h.panics, conn, h.idleTimeout, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.connections", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"conn_id": info.ConnID,
			"ip":      info.IP,
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	go client.WritePump()
	// detach from the request context: the connection outlives the handshake
	go client.ReadPump(context.Background())
}
