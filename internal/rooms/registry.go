package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chattrix-service/internal/models"
	"chattrix-service/internal/repositories"
	"chattrix-service/internal/security"
)

// Registry owns Session records. Joins are serialized per room so the
// capacity check and the session write cannot interleave with a concurrent
// join on the same room; unrelated rooms stay independent.
type Registry struct {
	store *Store
	repo  repositories.SessionRepository

	sessionTTL time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewRegistry constructs a Registry.
func NewRegistry(store *Store, repo repositories.SessionRepository, sessionTTL time.Duration) *Registry {
	return &Registry{
		store:      store,
		repo:       repo,
		sessionTTL: sessionTTL,
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

func (r *Registry) roomLock(roomID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[roomID] = lock
	}
	return lock
}

// Join validates the room and password, then, under the room's lock, either
// resumes the nickname's existing session or checks capacity and creates a
// new one. Nickname uniqueness within a room is guaranteed by this
// serialization; find-then-create alone would race.
func (r *Registry) Join(ctx context.Context, roomID, nickname, password, existingSessionID string) (models.Session, error) {
	if roomID == "" || nickname == "" || password == "" {
		return models.Session{}, ErrValidation
	}

	room, err := r.store.Lookup(ctx, roomID)
	if err != nil {
		return models.Session{}, err
	}

	if !r.store.hasher.Verify(password, room.PasswordHash) {
		return models.Session{}, ErrIncorrectPassword
	}

	lock := r.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	now := r.now()
	expiresAt := now.Add(r.sessionTTL)

	existing, err := r.repo.FindActiveByNickname(ctx, roomID, nickname, now)
	if err == nil {
		return r.resume(ctx, existing, existingSessionID, now, expiresAt)
	}
	if !errors.Is(err, repositories.ErrSessionNotFound) {
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}

	occupancy, err := r.repo.CountActive(ctx, roomID, now)
	if err != nil {
		return models.Session{}, fmt.Errorf("count sessions: %w", err)
	}
	if occupancy >= room.MaxUsers {
		return models.Session{}, ErrRoomFull
	}

	sessionID := existingSessionID
	if sessionID == "" {
		sessionID, err = security.NewID()
		if err != nil {
			return models.Session{}, err
		}
	}

	session := models.Session{
		SessionID:    sessionID,
		RoomID:       roomID,
		Nickname:     nickname,
		IsActive:     true,
		JoinedAt:     now,
		LastActivity: now,
		ExpiresAt:    expiresAt,
	}

	err = retryWrite(ctx, func() error { return r.repo.CreateSession(ctx, session) })
	if errors.Is(err, repositories.ErrDuplicateSession) {
		return models.Session{}, ErrNicknameConflict
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// resume rekeys the nickname's live session instead of creating a second one.
// A caller-supplied session id wins; otherwise the stored id is kept.
func (r *Registry) resume(ctx context.Context, existing models.Session, suppliedID string, now, expiresAt time.Time) (models.Session, error) {
	newID := suppliedID
	if newID == "" {
		newID = existing.SessionID
	}

	err := retryWrite(ctx, func() error {
		return r.repo.ReplaceSessionID(ctx, existing.SessionID, newID, now, expiresAt)
	})
	if errors.Is(err, repositories.ErrDuplicateSession) {
		return models.Session{}, ErrNicknameConflict
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("resume session: %w", err)
	}

	existing.SessionID = newID
	existing.LastActivity = now
	existing.ExpiresAt = expiresAt
	existing.IsActive = true
	return existing, nil
}

// Forget drops the join lock of a purged room so the lock map does not grow
// with every room the process has ever hosted. A concurrent join on the same
// id fails its room lookup before taking the lock, so dropping it here cannot
// split an in-flight capacity check.
func (r *Registry) Forget(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, roomID)
}

// Touch refreshes a session's activity window. Called on every observed
// action so liveness tracks use, not just the initial join.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	now := r.now()
	err := r.repo.TouchSession(ctx, sessionID, now, now.Add(r.sessionTTL))
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// SetInvisible updates the session's invisible flag.
func (r *Registry) SetInvisible(ctx context.Context, sessionID string, invisible bool) error {
	err := r.repo.SetInvisible(ctx, sessionID, invisible)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Deactivate marks a session inactive without deleting it, so stragglers
// still referencing the id observe an inactive record instead of a hard
// failure.
func (r *Registry) Deactivate(ctx context.Context, sessionID string) error {
	err := r.repo.DeactivateSession(ctx, sessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Get fetches a session by id.
func (r *Registry) Get(ctx context.Context, sessionID string) (models.Session, error) {
	session, err := r.repo.GetSession(ctx, sessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}
