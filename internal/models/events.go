package models

import "time"

// WireEvent is the frame exchanged over a websocket connection in both
// directions: a named event plus its JSON payload.
type WireEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinRequest is the payload of a join-room event.
type JoinRequest struct {
	RoomID    string `json:"roomId"`
	Nickname  string `json:"nickname"`
	Password  string `json:"password"`
	SessionID string `json:"sessionId,omitempty"`
}

// SendMessageRequest is the payload of a send-message event. Text carries
// ciphertext the coordinator treats as opaque.
type SendMessageRequest struct {
	Text      string     `json:"text"`
	IV        string     `json:"iv,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// RoomInfoEvent is the snapshot sent to a caller right after it joins.
type RoomInfoEvent struct {
	RoomID        string `json:"roomId"`
	Nickname      string `json:"nickname"`
	MaxUsers      int    `json:"maxUsers"`
	CurrentUsers  int    `json:"currentUsers"`
	EncryptionKey string `json:"encryptionKey"`
}

// PresenceEvent notifies room members of a peer joining or leaving.
type PresenceEvent struct {
	Nickname  string    `json:"nickname"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessageEvent is the broadcast form of an accepted message.
type NewMessageEvent struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	IV        string    `json:"iv,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// InvisibleEvent is broadcast when a member toggles invisible mode.
type InvisibleEvent struct {
	Nickname    string `json:"nickname"`
	IsInvisible bool   `json:"isInvisible"`
}

// TypingEvent is broadcast on start-typing and stop-typing.
type TypingEvent struct {
	Nickname string `json:"nickname"`
}

// ErrorEvent carries a human-readable failure message.
type ErrorEvent struct {
	Message string `json:"message"`
}
