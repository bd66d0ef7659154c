package rooms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chattrix-service/internal/models"
	"chattrix-service/internal/repositories"
	"chattrix-service/internal/security"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	roomID string
	event  string
	data   any
	calls  int
}

func (b *recordingBroadcaster) Broadcast(roomID, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roomID = roomID
	b.event = event
	b.data = data
	b.calls++
}

func TestPanicWipesMessagesAndNotifies(t *testing.T) {
	mem := repositories.NewMemoryStore()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	store := NewStore(mem, mem, hasher, time.Minute, 10)
	registry := NewRegistry(store, mem, time.Minute)
	ledger := NewLedger(mem, 5*time.Minute, 30, time.Minute)

	broadcaster := &recordingBroadcaster{}
	panics := NewPanicController(ledger, broadcaster)
	ctx := context.Background()

	room, err := store.Create(ctx, "alice", "secret", 5)
	require.NoError(t, err)
	session, err := registry.Join(ctx, room.RoomID, "alice", "secret", "")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := ledger.Append(ctx, room.RoomID, "alice", "ciphertext", "iv", 0)
		require.NoError(t, err)
	}

	count, err := panics.Trigger(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	msgs, err := ledger.Messages(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.Equal(t, 1, broadcaster.calls)
	assert.Equal(t, room.RoomID, broadcaster.roomID)
	assert.Equal(t, "panic-mode", broadcaster.event)
	if notice, ok := broadcaster.data.(models.ErrorEvent); assert.True(t, ok) {
		assert.Contains(t, notice.Message, "panic mode")
	}

	// the room and its sessions survive the wipe
	stored, err := mem.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	active, err := mem.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.True(t, active.IsActive)

	// and the room keeps working afterwards
	_, err = ledger.Append(ctx, room.RoomID, "alice", "ciphertext", "iv", 0)
	assert.NoError(t, err)
}

func TestPanicOnEmptyRoomIsHarmless(t *testing.T) {
	mem := repositories.NewMemoryStore()
	ledger := NewLedger(mem, 5*time.Minute, 30, time.Minute)
	broadcaster := &recordingBroadcaster{}
	panics := NewPanicController(ledger, broadcaster)

	count, err := panics.Trigger(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 1, broadcaster.calls)
}

func TestPanicRequiresRoomID(t *testing.T) {
	panics := NewPanicController(NewLedger(repositories.NewMemoryStore(), time.Minute, 30, time.Minute), &recordingBroadcaster{})

	_, err := panics.Trigger(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}
