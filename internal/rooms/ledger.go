package rooms

import (
	"context"
	"fmt"
	"time"

	"chattrix-service/internal/models"
	"chattrix-service/internal/observability"
	"chattrix-service/internal/repositories"
	"chattrix-service/internal/security"
)

// Ledger owns Message records: TTL-bounded append, per-sender rate limiting
// over a trailing window, idempotent read receipts and bulk wipe. Payloads
// are opaque ciphertext.
type Ledger struct {
	repo repositories.MessageRepository

	messageTTL time.Duration
	limit      int
	window     time.Duration

	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(repo repositories.MessageRepository, messageTTL time.Duration, limit int, window time.Duration) *Ledger {
	return &Ledger{
		repo:       repo,
		messageTTL: messageTTL,
		limit:      limit,
		window:     window,
		now:        time.Now,
	}
}

// RateLimitCheck reports whether the sender is still under the cap for the
// trailing window in this room.
func (l *Ledger) RateLimitCheck(ctx context.Context, roomID, sender string) (bool, error) {
	count, err := l.repo.CountRecentBySender(ctx, roomID, sender, l.now().Add(-l.window))
	if err != nil {
		return false, fmt.Errorf("count recent messages: %w", err)
	}
	return count < l.limit, nil
}

// Append stores a message if the sender is under the rate cap. A zero ttl
// takes the room policy default; a ttl beyond the retention window is clamped
// so no message outlives it.
func (l *Ledger) Append(ctx context.Context, roomID, sender, ciphertext, iv string, ttl time.Duration) (models.Message, error) {
	if roomID == "" || sender == "" || ciphertext == "" {
		return models.Message{}, ErrValidation
	}

	ok, err := l.RateLimitCheck(ctx, roomID, sender)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		observability.IncRateLimited()
		return models.Message{}, ErrRateLimited
	}

	if ttl <= 0 || ttl > l.messageTTL {
		ttl = l.messageTTL
	}

	id, err := security.NewID()
	if err != nil {
		return models.Message{}, err
	}

	now := l.now()
	msg := models.Message{
		MessageID:        id,
		RoomID:           roomID,
		Sender:           sender,
		EncryptedContent: ciphertext,
		IV:               iv,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}

	if err := retryWrite(ctx, func() error { return l.repo.CreateMessage(ctx, msg) }); err != nil {
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// MarkRead records that nickname has seen the message. Repeated calls for the
// same pair never duplicate the receipt.
func (l *Ledger) MarkRead(ctx context.Context, messageID, nickname string) error {
	if messageID == "" || nickname == "" {
		return ErrValidation
	}
	return l.repo.MarkRead(ctx, messageID, nickname, l.now())
}

// Messages returns the room's unexpired messages in acceptance order.
func (l *Ledger) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	return l.repo.ListRoomMessages(ctx, roomID, l.now())
}

// Wipe deletes every message in the room and returns the count removed.
func (l *Ledger) Wipe(ctx context.Context, roomID string) (int64, error) {
	return l.repo.WipeRoom(ctx, roomID)
}
