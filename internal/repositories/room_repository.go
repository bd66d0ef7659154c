package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chattrix-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room persistence. Expiry flags are stored verbatim;
// deciding whether a record is logically alive is the caller's job.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room models.Room) error
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	DeactivateRoom(ctx context.Context, roomID string) error
	DeactivateRoomsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteRoomsExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// RoomRepo is a sqlx-backed RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom stores a new room.
func (r *RoomRepo) CreateRoom(ctx context.Context, room models.Room) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO rooms (room_id, password_hash, creator, encryption_key, max_users, is_active, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		room.RoomID, room.PasswordHash, room.Creator, room.EncryptionKey, room.MaxUsers, room.IsActive, room.CreatedAt, room.ExpiresAt)
	return err
}

// GetRoom fetches a room by id regardless of its active flag.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT room_id, password_hash, creator, encryption_key, max_users, is_active, created_at, expires_at
        FROM rooms WHERE room_id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// DeactivateRoom marks a room inactive without deleting it.
func (r *RoomRepo) DeactivateRoom(ctx context.Context, roomID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET is_active = FALSE WHERE room_id=$1`, roomID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// DeactivateRoomsExpiredBefore marks every elapsed room inactive, leaving the
// record in place so in-flight reads see an explicit expired state.
func (r *RoomRepo) DeactivateRoomsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET is_active = FALSE WHERE is_active = TRUE AND expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteRoomsExpiredBefore hard-deletes rooms whose expiry is older than the
// cutoff, after the grace window has passed, returning the ids removed.
func (r *RoomRepo) DeleteRoomsExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `DELETE FROM rooms WHERE expires_at <= $1 RETURNING room_id`, cutoff)
	return ids, err
}
