package rooms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chattrix-service/internal/mocks"
	"chattrix-service/internal/models"
	"chattrix-service/internal/repositories"
	"chattrix-service/internal/security"
)

func TestSweepRemovesExpiredEntities(t *testing.T) {
	mem := repositories.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, mem.CreateRoom(ctx, models.Room{
		RoomID: "live", IsActive: true, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, mem.CreateRoom(ctx, models.Room{
		RoomID: "elapsed", IsActive: true, ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, mem.CreateSession(ctx, models.Session{
		SessionID: "s-live", RoomID: "live", IsActive: true, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, mem.CreateSession(ctx, models.Session{
		SessionID: "s-elapsed", RoomID: "elapsed", IsActive: true, ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, mem.CreateMessage(ctx, models.Message{
		MessageID: "m-live", RoomID: "live", Sender: "alice", ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, mem.CreateMessage(ctx, models.Message{
		MessageID: "m-elapsed", RoomID: "live", Sender: "alice", ExpiresAt: now.Add(-time.Minute),
	}))

	reaper := NewReaper(mem, mem, mem, time.Minute, time.Hour, nil)
	reaper.Sweep(ctx)

	_, err := mem.GetMessage(ctx, "m-live", now)
	assert.NoError(t, err)
	_, err = mem.GetMessage(ctx, "m-elapsed", now)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)

	_, err = mem.GetSession(ctx, "s-live")
	assert.NoError(t, err)
	_, err = mem.GetSession(ctx, "s-elapsed")
	assert.ErrorIs(t, err, repositories.ErrSessionNotFound)

	// elapsed room is deactivated, not yet purged
	room, err := mem.GetRoom(ctx, "elapsed")
	require.NoError(t, err)
	assert.False(t, room.IsActive)

	room, err = mem.GetRoom(ctx, "live")
	require.NoError(t, err)
	assert.True(t, room.IsActive)
}

func TestSweepPurgesRoomsPastGrace(t *testing.T) {
	mem := repositories.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, mem.CreateRoom(ctx, models.Room{
		RoomID: "recent", IsActive: false, ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, mem.CreateRoom(ctx, models.Room{
		RoomID: "ancient", IsActive: false, ExpiresAt: now.Add(-2 * time.Hour),
	}))

	reaper := NewReaper(mem, mem, mem, time.Minute, time.Hour, nil)
	reaper.Sweep(ctx)

	_, err := mem.GetRoom(ctx, "recent")
	assert.NoError(t, err)
	_, err = mem.GetRoom(ctx, "ancient")
	assert.ErrorIs(t, err, repositories.ErrRoomNotFound)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	roomsRepo := new(mocks.RoomRepositoryMock)
	sessionsRepo := new(mocks.SessionRepositoryMock)
	messagesRepo := new(mocks.MessageRepositoryMock)

	messagesRepo.On("DeleteMessagesExpiredBefore", mock.Anything, mock.Anything).
		Return(int64(0), assert.AnError)
	sessionsRepo.On("DeleteSessionsExpiredBefore", mock.Anything, mock.Anything).
		Return(int64(2), nil)
	roomsRepo.On("DeactivateRoomsExpiredBefore", mock.Anything, mock.Anything).
		Return(int64(1), nil)
	roomsRepo.On("DeleteRoomsExpiredBefore", mock.Anything, mock.Anything).
		Return(nil, nil)

	reaper := NewReaper(roomsRepo, sessionsRepo, messagesRepo, time.Minute, time.Hour, nil)
	reaper.Sweep(context.Background())

	messagesRepo.AssertExpectations(t)
	sessionsRepo.AssertExpectations(t)
	roomsRepo.AssertExpectations(t)
}

func TestSweepPurgeReleasesJoinLocks(t *testing.T) {
	mem := repositories.NewMemoryStore()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	store := NewStore(mem, mem, hasher, time.Minute, 10)
	registry := NewRegistry(store, mem, time.Minute)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, mem.CreateRoom(ctx, models.Room{
		RoomID: "ancient", IsActive: false, ExpiresAt: now.Add(-2 * time.Hour),
	}))
	registry.roomLock("ancient")

	reaper := NewReaper(mem, mem, mem, time.Minute, time.Hour, registry.Forget)
	reaper.Sweep(ctx)

	registry.mu.Lock()
	_, held := registry.locks["ancient"]
	registry.mu.Unlock()
	assert.False(t, held)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	mem := repositories.NewMemoryStore()
	reaper := NewReaper(mem, mem, mem, 10*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
