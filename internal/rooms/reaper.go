package rooms

import (
	"context"
	"log"
	"time"

	"chattrix-service/internal/observability"
	"chattrix-service/internal/repositories"
)

// Reaper periodically expires rooms, sessions and messages. Each entity is
// swept independently and a failure on one never aborts the rest; no lock is
// held across a whole store, so connection handling is never paused.
type Reaper struct {
	rooms    repositories.RoomRepository
	sessions repositories.SessionRepository
	messages repositories.MessageRepository

	interval  time.Duration
	roomGrace time.Duration

	// onPurge is invoked once per hard-deleted room so per-room resources
	// held elsewhere (join locks) can be released. May be nil.
	onPurge func(roomID string)

	now func() time.Time
}

// NewReaper constructs a Reaper.
func NewReaper(rooms repositories.RoomRepository, sessions repositories.SessionRepository, messages repositories.MessageRepository, interval, roomGrace time.Duration, onPurge func(roomID string)) *Reaper {
	return &Reaper{
		rooms:     rooms,
		sessions:  sessions,
		messages:  messages,
		interval:  interval,
		roomGrace: roomGrace,
		onPurge:   onPurge,
		now:       time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass. Messages and sessions are deleted outright;
// elapsed rooms are only marked inactive, giving in-flight reads a grace
// window to observe an explicit expired state, and are hard-deleted once the
// grace has passed.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.now()

	if count, err := r.messages.DeleteMessagesExpiredBefore(ctx, now); err != nil {
		log.Printf("reaper: delete expired messages: %v", err)
	} else if count > 0 {
		observability.AddReaped("messages", count)
	}

	if count, err := r.sessions.DeleteSessionsExpiredBefore(ctx, now); err != nil {
		log.Printf("reaper: delete expired sessions: %v", err)
	} else if count > 0 {
		observability.AddReaped("sessions", count)
	}

	if count, err := r.rooms.DeactivateRoomsExpiredBefore(ctx, now); err != nil {
		log.Printf("reaper: deactivate expired rooms: %v", err)
	} else if count > 0 {
		observability.AddReaped("rooms_deactivated", count)
	}

	if ids, err := r.rooms.DeleteRoomsExpiredBefore(ctx, now.Add(-r.roomGrace)); err != nil {
		log.Printf("reaper: purge expired rooms: %v", err)
	} else if len(ids) > 0 {
		observability.AddReaped("rooms_purged", int64(len(ids)))
		if r.onPurge != nil {
			for _, id := range ids {
				r.onPurge(id)
			}
		}
	}
}
