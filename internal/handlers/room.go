package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chattrix-service/internal/observability"
	"chattrix-service/internal/rooms"
)

// RoomHandler serves the request/response layer for room creation, joining
// and lookup. Real-time traffic rides the websocket instead.
type RoomHandler struct {
	store    *rooms.Store
	registry *rooms.Registry
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(store *rooms.Store, registry *rooms.Registry) *RoomHandler {
	return &RoomHandler{store: store, registry: registry}
}

// CreateRoom provisions a room plus the creator's session and hands back the
// client-side encryption key.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Nickname string `json:"nickname" binding:"required"`
		Password string `json:"password" binding:"required"`
		MaxUsers int    `json:"maxUsers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.store.Create(c.Request.Context(), req.Nickname, req.Password, req.MaxUsers)
	if err != nil {
		if errors.Is(err, rooms.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nickname and password are required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	session, err := h.registry.Join(c.Request.Context(), room.RoomID, req.Nickname, req.Password, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	requestID := requestIDFromContext(c)
	_ = observability.PublishEvent(c.Request.Context(), "rooms.created", observability.EventEnvelope{
		EventType: "room_events",
		EventName: "room_created",
		Payload: map[string]interface{}{
			"room_id":   room.RoomID,
			"creator":   room.Creator,
			"max_users": room.MaxUsers,
		},
	}, observability.BuildHeaders(requestID, ""))

	c.JSON(http.StatusOK, gin.H{
		"roomId":        room.RoomID,
		"sessionId":     session.SessionID,
		"encryptionKey": room.EncryptionKey,
		"expiresAt":     room.ExpiresAt,
		"message":       "Room created successfully",
	})
}

// JoinRoom validates the password and capacity and mints (or resumes) a
// session. Absent rooms and wrong passwords get the same response so callers
// cannot tell which one failed.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID := c.Param("room_id")

	var req struct {
		Nickname string `json:"nickname" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.registry.Join(c.Request.Context(), roomID, req.Nickname, req.Password, "")
	if err != nil {
		switch {
		case errors.Is(err, rooms.ErrRoomNotFound), errors.Is(err, rooms.ErrIncorrectPassword):
			c.JSON(http.StatusNotFound, gin.H{"error": rooms.GenericAuthMessage})
		case errors.Is(err, rooms.ErrRoomFull):
			c.JSON(http.StatusForbidden, gin.H{"error": "room is full"})
		case errors.Is(err, rooms.ErrNicknameConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "nickname already in use"})
		case errors.Is(err, rooms.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "nickname and password are required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join room"})
		}
		return
	}

	room, err := h.store.Lookup(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": rooms.GenericAuthMessage})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":     session.SessionID,
		"encryptionKey": room.EncryptionKey,
		"message":       "Joined room successfully",
	})
}

// RoomInfo returns public room metadata and the live occupant count.
func (h *RoomHandler) RoomInfo(c *gin.Context) {
	roomID := c.Param("room_id")

	room, err := h.store.Lookup(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) || errors.Is(err, rooms.ErrValidation) {
			c.JSON(http.StatusNotFound, gin.H{"error": rooms.GenericAuthMessage})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get room info"})
		return
	}

	userCount, err := h.store.Occupancy(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get room info"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":    room.RoomID,
		"creator":   room.Creator,
		"createdAt": room.CreatedAt,
		"userCount": userCount,
	})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"message":   "Chat server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}
