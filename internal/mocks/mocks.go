package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chattrix-service/internal/models"
	"chattrix-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, room models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) DeactivateRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) DeactivateRoomsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RoomRepositoryMock) DeleteRoomsExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	args := m.Called(ctx, cutoff)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) CreateSession(ctx context.Context, session models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionRepositoryMock) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	args := m.Called(ctx, sessionID)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) FindActiveByNickname(ctx context.Context, roomID, nickname string, now time.Time) (models.Session, error) {
	args := m.Called(ctx, roomID, nickname, now)
	var session models.Session
	if val := args.Get(0); val != nil {
		session = val.(models.Session)
	}
	return session, args.Error(1)
}

func (m *SessionRepositoryMock) CountActive(ctx context.Context, roomID string, now time.Time) (int, error) {
	args := m.Called(ctx, roomID, now)
	return args.Int(0), args.Error(1)
}

func (m *SessionRepositoryMock) ReplaceSessionID(ctx context.Context, oldID, newID string, lastActivity, expiresAt time.Time) error {
	args := m.Called(ctx, oldID, newID, lastActivity, expiresAt)
	return args.Error(0)
}

func (m *SessionRepositoryMock) TouchSession(ctx context.Context, sessionID string, lastActivity, expiresAt time.Time) error {
	args := m.Called(ctx, sessionID, lastActivity, expiresAt)
	return args.Error(0)
}

func (m *SessionRepositoryMock) SetInvisible(ctx context.Context, sessionID string, invisible bool) error {
	args := m.Called(ctx, sessionID, invisible)
	return args.Error(0)
}

func (m *SessionRepositoryMock) DeactivateSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *SessionRepositoryMock) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string, now time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, now)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRoomMessages(ctx context.Context, roomID string, now time.Time) ([]models.Message, error) {
	args := m.Called(ctx, roomID, now)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) CountRecentBySender(ctx context.Context, roomID, sender string, since time.Time) (int, error) {
	args := m.Called(ctx, roomID, sender, since)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, nickname string, readAt time.Time) error {
	args := m.Called(ctx, messageID, nickname, readAt)
	return args.Error(0)
}

func (m *MessageRepositoryMock) WipeRoom(ctx context.Context, roomID string) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessagesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.SessionRepository = (*SessionRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
