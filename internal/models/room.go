package models

import "time"

// Room is a password-gated ephemeral namespace grouping sessions and messages.
// An active room always has ExpiresAt in the future; past ExpiresAt it is
// logically inactive regardless of physical deletion state.
type Room struct {
	RoomID        string    `db:"room_id" json:"roomId"`
	PasswordHash  string    `db:"password_hash" json:"-"`
	Creator       string    `db:"creator" json:"creator"`
	EncryptionKey string    `db:"encryption_key" json:"-"`
	MaxUsers      int       `db:"max_users" json:"maxUsers"`
	IsActive      bool      `db:"is_active" json:"isActive"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt     time.Time `db:"expires_at" json:"expiresAt"`
}

// Expired reports whether the room is logically gone at the given instant.
func (r Room) Expired(now time.Time) bool {
	return !r.IsActive || !r.ExpiresAt.After(now)
}
