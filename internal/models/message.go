package models

import "time"

// Message stores an opaque ciphertext payload with its IV. The coordinator
// never decrypts content; it only manages the record's lifecycle.
type Message struct {
	MessageID        string        `db:"message_id" json:"id"`
	RoomID           string        `db:"room_id" json:"roomId"`
	Sender           string        `db:"sender" json:"sender"`
	EncryptedContent string        `db:"encrypted_content" json:"text"`
	IV               string        `db:"iv" json:"iv"`
	ReadBy           []ReadReceipt `db:"-" json:"readBy,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"timestamp"`
	ExpiresAt        time.Time     `db:"expires_at" json:"expiresAt"`
}

// ReadReceipt records that a nickname has seen a message.
type ReadReceipt struct {
	MessageID string    `db:"message_id" json:"-"`
	Nickname  string    `db:"nickname" json:"nickname"`
	ReadAt    time.Time `db:"read_at" json:"readAt"`
}

// Expired reports whether the message may still be returned by reads.
func (m Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.After(now)
}
