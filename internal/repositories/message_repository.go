package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chattrix-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository abstracts message persistence scoped to a room.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, messageID string, now time.Time) (models.Message, error)
	ListRoomMessages(ctx context.Context, roomID string, now time.Time) ([]models.Message, error)
	CountRecentBySender(ctx context.Context, roomID, sender string, since time.Time) (int, error)
	MarkRead(ctx context.Context, messageID, nickname string, readAt time.Time) error
	WipeRoom(ctx context.Context, roomID string) (int64, error)
	DeleteMessagesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepo is a sqlx-backed MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (message_id, room_id, sender, encrypted_content, iv, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.MessageID, msg.RoomID, msg.Sender, msg.EncryptedContent, msg.IV, msg.CreatedAt, msg.ExpiresAt)
	return err
}

// GetMessage retrieves a single unexpired message with its read receipts.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string, now time.Time) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT message_id, room_id, sender, encrypted_content, iv, created_at, expires_at
        FROM messages WHERE message_id=$1 AND expires_at > $2`, messageID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if err := r.db.SelectContext(ctx, &msg.ReadBy, `SELECT message_id, nickname, read_at FROM message_reads WHERE message_id=$1 ORDER BY read_at ASC`, messageID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListRoomMessages returns a room's unexpired messages in acceptance order.
func (r *MessageRepo) ListRoomMessages(ctx context.Context, roomID string, now time.Time) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT message_id, room_id, sender, encrypted_content, iv, created_at, expires_at
        FROM messages WHERE room_id=$1 AND expires_at > $2 ORDER BY created_at ASC`, roomID, now)
	return msgs, err
}

// CountRecentBySender counts a sender's messages created at or after since.
func (r *MessageRepo) CountRecentBySender(ctx context.Context, roomID, sender string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE room_id=$1 AND sender=$2 AND created_at >= $3`, roomID, sender, since)
	return count, err
}

// MarkRead records a read receipt. Repeated calls for the same pair are a
// no-op rather than a duplicate.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, nickname string, readAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, nickname, read_at) VALUES ($1, $2, $3)
        ON CONFLICT (message_id, nickname) DO NOTHING`, messageID, nickname, readAt)
	return err
}

// WipeRoom deletes all of a room's messages and returns the count removed.
func (r *MessageRepo) WipeRoom(ctx context.Context, roomID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id=$1`, roomID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteMessagesExpiredBefore removes elapsed messages.
func (r *MessageRepo) DeleteMessagesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
