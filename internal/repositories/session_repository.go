package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chattrix-service/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession reports that another active session already holds
	// the (room, nickname) pair. The per-room join lock makes this rare; the
	// unique index is the backstop when a second coordinator shares the
	// database.
	ErrDuplicateSession = errors.New("duplicate active session")
)

// SessionRepository abstracts session persistence scoped to a room.
type SessionRepository interface {
	CreateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	FindActiveByNickname(ctx context.Context, roomID, nickname string, now time.Time) (models.Session, error)
	CountActive(ctx context.Context, roomID string, now time.Time) (int, error)
	ReplaceSessionID(ctx context.Context, oldID, newID string, lastActivity, expiresAt time.Time) error
	TouchSession(ctx context.Context, sessionID string, lastActivity, expiresAt time.Time) error
	SetInvisible(ctx context.Context, sessionID string, invisible bool) error
	DeactivateSession(ctx context.Context, sessionID string) error
	DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepo is a sqlx-backed SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// CreateSession stores a new session.
func (r *SessionRepo) CreateSession(ctx context.Context, session models.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (session_id, room_id, nickname, is_invisible, is_active, joined_at, last_activity, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.SessionID, session.RoomID, session.Nickname, session.IsInvisible, session.IsActive, session.JoinedAt, session.LastActivity, session.ExpiresAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateSession
	}
	return err
}

// GetSession fetches a session by id.
func (r *SessionRepo) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `SELECT session_id, room_id, nickname, is_invisible, is_active, joined_at, last_activity, expires_at
        FROM sessions WHERE session_id=$1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// FindActiveByNickname returns the live session holding a nickname in a room.
func (r *SessionRepo) FindActiveByNickname(ctx context.Context, roomID, nickname string, now time.Time) (models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `SELECT session_id, room_id, nickname, is_invisible, is_active, joined_at, last_activity, expires_at
        FROM sessions WHERE room_id=$1 AND nickname=$2 AND is_active = TRUE AND expires_at > $3`, roomID, nickname, now)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

// CountActive returns the number of active, unexpired sessions in a room.
func (r *SessionRepo) CountActive(ctx context.Context, roomID string, now time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM sessions WHERE room_id=$1 AND is_active = TRUE AND expires_at > $2`, roomID, now)
	return count, err
}

// ReplaceSessionID rekeys an existing session during resumption and refreshes
// its activity window.
func (r *SessionRepo) ReplaceSessionID(ctx context.Context, oldID, newID string, lastActivity, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET session_id=$1, last_activity=$2, expires_at=$3, is_active = TRUE WHERE session_id=$4`,
		newID, lastActivity, expiresAt, oldID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateSession
	}
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// TouchSession refreshes activity and expiry.
func (r *SessionRepo) TouchSession(ctx context.Context, sessionID string, lastActivity, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_activity=$1, expires_at=$2 WHERE session_id=$3`, lastActivity, expiresAt, sessionID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetInvisible updates the invisible flag.
func (r *SessionRepo) SetInvisible(ctx context.Context, sessionID string, invisible bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_invisible=$1 WHERE session_id=$2`, invisible, sessionID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeactivateSession marks a session inactive without deleting it, so
// stragglers still holding the id do not hard-fail.
func (r *SessionRepo) DeactivateSession(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE WHERE session_id=$1`, sessionID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSessionsExpiredBefore removes elapsed sessions.
func (r *SessionRepo) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
