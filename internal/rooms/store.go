package rooms

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chattrix-service/internal/models"
	"chattrix-service/internal/repositories"
	"chattrix-service/internal/security"
)

const (
	minRoomUsers = 1
	maxRoomUsers = 50

	idAttempts = 5
)

// Store owns Room records: creation, lazy-expiry lookup, password checks and
// occupancy counts. One instance exists per process.
type Store struct {
	repo     repositories.RoomRepository
	sessions repositories.SessionRepository
	hasher   security.Hasher

	roomTTL         time.Duration
	defaultMaxUsers int

	now func() time.Time
}

// NewStore constructs a Store.
func NewStore(repo repositories.RoomRepository, sessions repositories.SessionRepository, hasher security.Hasher, roomTTL time.Duration, defaultMaxUsers int) *Store {
	if defaultMaxUsers < minRoomUsers || defaultMaxUsers > maxRoomUsers {
		defaultMaxUsers = 10
	}
	return &Store{
		repo:            repo,
		sessions:        sessions,
		hasher:          hasher,
		roomTTL:         roomTTL,
		defaultMaxUsers: defaultMaxUsers,
		now:             time.Now,
	}
}

// Create builds a room with a collision-checked opaque id, a slow-hashed
// password and a client-only symmetric key the coordinator never uses.
// maxUsers of zero takes the default; anything else is clamped to [1,50].
func (s *Store) Create(ctx context.Context, creator, password string, maxUsers int) (models.Room, error) {
	if creator == "" || password == "" {
		return models.Room{}, ErrValidation
	}

	if maxUsers == 0 {
		maxUsers = s.defaultMaxUsers
	}
	if maxUsers < minRoomUsers {
		maxUsers = minRoomUsers
	}
	if maxUsers > maxRoomUsers {
		maxUsers = maxRoomUsers
	}

	roomID, err := s.freeRoomID(ctx)
	if err != nil {
		return models.Room{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Room{}, fmt.Errorf("hash password: %w", err)
	}

	key, err := security.NewEncryptionKey()
	if err != nil {
		return models.Room{}, err
	}

	now := s.now()
	room := models.Room{
		RoomID:        roomID,
		PasswordHash:  hash,
		Creator:       creator,
		EncryptionKey: key,
		MaxUsers:      maxUsers,
		IsActive:      true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.roomTTL),
	}

	if err := retryWrite(ctx, func() error { return s.repo.CreateRoom(ctx, room) }); err != nil {
		return models.Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *Store) freeRoomID(ctx context.Context) (string, error) {
	for i := 0; i < idAttempts; i++ {
		id, err := security.NewID()
		if err != nil {
			return "", err
		}
		_, err = s.repo.GetRoom(ctx, id)
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check room id: %w", err)
		}
	}
	return "", fmt.Errorf("could not allocate a unique room id")
}

// Lookup returns a live room. Absent, inactive and TTL-elapsed records all
// surface as ErrRoomNotFound; an expired-but-present record is marked
// inactive asynchronously so the caller is never blocked on the write.
func (s *Store) Lookup(ctx context.Context, roomID string) (models.Room, error) {
	if roomID == "" {
		return models.Room{}, ErrValidation
	}

	room, err := s.repo.GetRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("lookup room: %w", err)
	}

	if !room.IsActive {
		return models.Room{}, ErrRoomNotFound
	}

	if room.Expired(s.now()) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.repo.DeactivateRoom(ctx, room.RoomID); err != nil {
				log.Printf("lazy room expiry failed room=%s: %v", room.RoomID, err)
			}
		}()
		return models.Room{}, ErrRoomNotFound
	}
	return room, nil
}

// VerifyPassword reports whether the plaintext matches the room's hash.
// Callers must collapse a false result and ErrRoomNotFound into the same
// client-facing message.
func (s *Store) VerifyPassword(ctx context.Context, roomID, password string) (bool, error) {
	room, err := s.Lookup(ctx, roomID)
	if err != nil {
		return false, err
	}
	return s.hasher.Verify(password, room.PasswordHash), nil
}

// Occupancy counts the room's active, unexpired sessions.
func (s *Store) Occupancy(ctx context.Context, roomID string) (int, error) {
	return s.sessions.CountActive(ctx, roomID, s.now())
}
