package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chattrix-service/internal/mocks"
	"chattrix-service/internal/repositories"
)

func newTestLedger(limit int, window, messageTTL time.Duration) (*Ledger, *repositories.MemoryStore) {
	mem := repositories.NewMemoryStore()
	return NewLedger(mem, messageTTL, limit, window), mem
}

func TestAppendStoresMessage(t *testing.T) {
	ledger, _ := newTestLedger(10, time.Minute, 5*time.Minute)
	ctx := context.Background()

	msg, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.MessageID)
	assert.Equal(t, "room-1", msg.RoomID)
	assert.Equal(t, "ciphertext", msg.EncryptedContent)

	msgs, err := ledger.Messages(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.MessageID, msgs[0].MessageID)
}

func TestAppendRejectsMissingFields(t *testing.T) {
	ledger, _ := newTestLedger(10, time.Minute, 5*time.Minute)
	ctx := context.Background()

	_, err := ledger.Append(ctx, "", "alice", "ciphertext", "iv", 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ledger.Append(ctx, "room-1", "", "ciphertext", "iv", 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ledger.Append(ctx, "room-1", "alice", "", "iv", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppendDefaultsAndClampsTTL(t *testing.T) {
	ledger, _ := newTestLedger(10, time.Minute, 5*time.Minute)
	ctx := context.Background()

	msg, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, msg.ExpiresAt.Sub(msg.CreatedAt))

	msg, err = ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, msg.ExpiresAt.Sub(msg.CreatedAt))

	msg, err = ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, msg.ExpiresAt.Sub(msg.CreatedAt))
}

func TestAppendRateLimitsPerSender(t *testing.T) {
	ledger, _ := newTestLedger(3, time.Minute, 5*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
		require.NoError(t, err)
	}

	_, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	assert.ErrorIs(t, err, ErrRateLimited)

	// the cap is per sender, not per room
	_, err = ledger.Append(ctx, "room-1", "bob", "ciphertext", "iv", 0)
	assert.NoError(t, err)
}

func TestRateLimitWindowSlides(t *testing.T) {
	ledger, _ := newTestLedger(2, time.Minute, 5*time.Minute)
	ctx := context.Background()

	base := time.Now()
	ledger.now = func() time.Time { return base }

	_, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.NoError(t, err)
	_, err = ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.NoError(t, err)

	_, err = ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.ErrorIs(t, err, ErrRateLimited)

	ledger.now = func() time.Time { return base.Add(61 * time.Second) }

	_, err = ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	assert.NoError(t, err)
}

func TestExpiredMessagesAreInvisible(t *testing.T) {
	ledger, _ := newTestLedger(10, time.Minute, 5*time.Minute)
	ctx := context.Background()

	base := time.Now()
	ledger.now = func() time.Time { return base }

	msg, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", time.Minute)
	require.NoError(t, err)

	msgs, err := ledger.Messages(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	ledger.now = func() time.Time { return base.Add(time.Minute) }

	msgs, err = ledger.Messages(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, msgs, "message %s should be past its expiry", msg.MessageID)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ledger, mem := newTestLedger(10, time.Minute, 5*time.Minute)
	ctx := context.Background()

	msg, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.NoError(t, err)

	require.NoError(t, ledger.MarkRead(ctx, msg.MessageID, "bob"))
	require.NoError(t, ledger.MarkRead(ctx, msg.MessageID, "bob"))

	stored, err := mem.GetMessage(ctx, msg.MessageID, time.Now())
	require.NoError(t, err)
	require.Len(t, stored.ReadBy, 1)
	assert.Equal(t, "bob", stored.ReadBy[0].Nickname)
}

func TestMarkReadValidation(t *testing.T) {
	ledger, _ := newTestLedger(10, time.Minute, 5*time.Minute)

	assert.ErrorIs(t, ledger.MarkRead(context.Background(), "", "bob"), ErrValidation)
	assert.ErrorIs(t, ledger.MarkRead(context.Background(), "msg", ""), ErrValidation)
}

func TestWipeReturnsCount(t *testing.T) {
	ledger, _ := newTestLedger(10, time.Minute, 5*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
		require.NoError(t, err)
	}
	_, err := ledger.Append(ctx, "room-2", "bob", "ciphertext", "iv", 0)
	require.NoError(t, err)

	count, err := ledger.Wipe(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	msgs, err := ledger.Messages(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// other rooms are untouched
	msgs, err = ledger.Messages(ctx, "room-2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAppendRetriesTransientWriteFailure(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	ledger := NewLedger(repo, 5*time.Minute, 10, time.Minute)
	ctx := context.Background()

	repo.On("CountRecentBySender", ctx, "room-1", "alice", mock.Anything).Return(0, nil)
	repo.On("CreateMessage", ctx, mock.Anything).Return(assert.AnError).Once()
	repo.On("CreateMessage", ctx, mock.Anything).Return(nil).Once()

	_, err := ledger.Append(ctx, "room-1", "alice", "ciphertext", "iv", 0)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
