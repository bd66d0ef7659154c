package models

import "time"

// Session is a participant's membership record in one room, tied to a nickname.
// At most one active session may exist per (room, nickname).
type Session struct {
	SessionID    string    `db:"session_id" json:"sessionId"`
	RoomID       string    `db:"room_id" json:"roomId"`
	Nickname     string    `db:"nickname" json:"nickname"`
	IsInvisible  bool      `db:"is_invisible" json:"isInvisible"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	JoinedAt     time.Time `db:"joined_at" json:"joinedAt"`
	LastActivity time.Time `db:"last_activity" json:"lastActivity"`
	ExpiresAt    time.Time `db:"expires_at" json:"expiresAt"`
}

// Expired reports whether the session is logically gone at the given instant.
func (s Session) Expired(now time.Time) bool {
	return !s.IsActive || !s.ExpiresAt.After(now)
}
