package repositories

import (
	"context"
	"sync"
	"time"

	"chattrix-service/internal/models"
)

// MemoryStore backs all three repositories with process-local maps. It is
// wired when no database DSN is configured and mirrors the durable backend's
// contract exactly.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]models.Room
	sessions map[string]models.Session
	messages map[string]models.Message
	order    map[string][]string
	reads    map[string]map[string]time.Time
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]models.Room),
		sessions: make(map[string]models.Session),
		messages: make(map[string]models.Message),
		order:    make(map[string][]string),
		reads:    make(map[string]map[string]time.Time),
	}
}

var (
	_ RoomRepository    = (*MemoryStore)(nil)
	_ SessionRepository = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
)

// CreateRoom stores a new room.
func (s *MemoryStore) CreateRoom(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.RoomID] = room
	return nil
}

// GetRoom fetches a room by id regardless of its active flag.
func (s *MemoryStore) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return room, nil
}

// DeactivateRoom marks a room inactive without deleting it.
func (s *MemoryStore) DeactivateRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.IsActive = false
	s.rooms[roomID] = room
	return nil
}

// DeactivateRoomsExpiredBefore marks elapsed rooms inactive.
func (s *MemoryStore) DeactivateRoomsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, room := range s.rooms {
		if room.IsActive && !room.ExpiresAt.After(cutoff) {
			room.IsActive = false
			s.rooms[id] = room
			count++
		}
	}
	return count, nil
}

// DeleteRoomsExpiredBefore hard-deletes long-expired rooms and returns their
// ids so callers can release per-room resources.
func (s *MemoryStore) DeleteRoomsExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, room := range s.rooms {
		if !room.ExpiresAt.After(cutoff) {
			delete(s.rooms, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CreateSession stores a new session. A session id already held by any room
// is rejected, matching the primary key on the durable backend.
func (s *MemoryStore) CreateSession(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[session.SessionID]; taken {
		return ErrDuplicateSession
	}
	s.sessions[session.SessionID] = session
	return nil
}

// GetSession fetches a session by id.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// FindActiveByNickname returns the live session holding a nickname in a room.
func (s *MemoryStore) FindActiveByNickname(ctx context.Context, roomID, nickname string, now time.Time) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.RoomID == roomID && session.Nickname == nickname && session.IsActive && session.ExpiresAt.After(now) {
			return session, nil
		}
	}
	return models.Session{}, ErrSessionNotFound
}

// CountActive returns the number of active, unexpired sessions in a room.
func (s *MemoryStore) CountActive(ctx context.Context, roomID string, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, session := range s.sessions {
		if session.RoomID == roomID && session.IsActive && session.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

// ReplaceSessionID rekeys an existing session during resumption. The new id
// must not belong to another session.
func (s *MemoryStore) ReplaceSessionID(ctx context.Context, oldID, newID string, lastActivity, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[oldID]
	if !ok {
		return ErrSessionNotFound
	}
	if newID != oldID {
		if _, taken := s.sessions[newID]; taken {
			return ErrDuplicateSession
		}
	}
	delete(s.sessions, oldID)
	session.SessionID = newID
	session.LastActivity = lastActivity
	session.ExpiresAt = expiresAt
	session.IsActive = true
	s.sessions[newID] = session
	return nil
}

// TouchSession refreshes activity and expiry.
func (s *MemoryStore) TouchSession(ctx context.Context, sessionID string, lastActivity, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.LastActivity = lastActivity
	session.ExpiresAt = expiresAt
	s.sessions[sessionID] = session
	return nil
}

// SetInvisible updates the invisible flag.
func (s *MemoryStore) SetInvisible(ctx context.Context, sessionID string, invisible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.IsInvisible = invisible
	s.sessions[sessionID] = session
	return nil
}

// DeactivateSession marks a session inactive without deleting it.
func (s *MemoryStore) DeactivateSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.IsActive = false
	s.sessions[sessionID] = session
	return nil
}

// DeleteSessionsExpiredBefore removes elapsed sessions.
func (s *MemoryStore) DeleteSessionsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(cutoff) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// CreateMessage stores a message, preserving acceptance order per room.
func (s *MemoryStore) CreateMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.MessageID] = msg
	s.order[msg.RoomID] = append(s.order[msg.RoomID], msg.MessageID)
	return nil
}

// GetMessage retrieves a single unexpired message with its read receipts.
func (s *MemoryStore) GetMessage(ctx context.Context, messageID string, now time.Time) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[messageID]
	if !ok || msg.Expired(now) {
		return models.Message{}, ErrMessageNotFound
	}
	for nickname, readAt := range s.reads[messageID] {
		msg.ReadBy = append(msg.ReadBy, models.ReadReceipt{MessageID: messageID, Nickname: nickname, ReadAt: readAt})
	}
	return msg, nil
}

// ListRoomMessages returns a room's unexpired messages in acceptance order.
func (s *MemoryStore) ListRoomMessages(ctx context.Context, roomID string, now time.Time) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var msgs []models.Message
	for _, id := range s.order[roomID] {
		msg, ok := s.messages[id]
		if ok && !msg.Expired(now) {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// CountRecentBySender counts a sender's messages created at or after since.
func (s *MemoryStore) CountRecentBySender(ctx context.Context, roomID, sender string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, msg := range s.messages {
		if msg.RoomID == roomID && msg.Sender == sender && !msg.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// MarkRead records a read receipt, once per (message, nickname).
func (s *MemoryStore) MarkRead(ctx context.Context, messageID, nickname string, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	receipts, ok := s.reads[messageID]
	if !ok {
		receipts = make(map[string]time.Time)
		s.reads[messageID] = receipts
	}
	if _, seen := receipts[nickname]; !seen {
		receipts[nickname] = readAt
	}
	return nil
}

// WipeRoom deletes all of a room's messages and returns the count removed.
func (s *MemoryStore) WipeRoom(ctx context.Context, roomID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, id := range s.order[roomID] {
		if _, ok := s.messages[id]; ok {
			delete(s.messages, id)
			delete(s.reads, id)
			count++
		}
	}
	delete(s.order, roomID)
	return count, nil
}

// DeleteMessagesExpiredBefore removes elapsed messages and compacts the
// per-room order slices so they do not accumulate dead ids.
func (s *MemoryStore) DeleteMessagesExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := make(map[string]bool)
	for id, msg := range s.messages {
		if !msg.ExpiresAt.After(cutoff) {
			delete(s.messages, id)
			delete(s.reads, id)
			deleted[id] = true
		}
	}
	if len(deleted) == 0 {
		return 0, nil
	}
	for roomID, ids := range s.order {
		kept := ids[:0]
		for _, id := range ids {
			if !deleted[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(s.order, roomID)
		} else {
			s.order[roomID] = kept
		}
	}
	return int64(len(deleted)), nil
}
