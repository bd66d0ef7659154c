package rooms

import (
	"context"
	"fmt"

	"chattrix-service/internal/models"
	"chattrix-service/internal/observability"
)

// Broadcaster fans an event out to every connection subscribed to a room's
// topic. Implemented by the websocket hub.
type Broadcaster interface {
	Broadcast(roomID, event string, data any)
}

// PanicController erases a room's message content and tells every subscriber
// to drop local history. The room and its sessions stay active; panic wipes
// content only.
type PanicController struct {
	ledger      *Ledger
	broadcaster Broadcaster
}

// NewPanicController constructs a PanicController.
func NewPanicController(ledger *Ledger, broadcaster Broadcaster) *PanicController {
	return &PanicController{ledger: ledger, broadcaster: broadcaster}
}

// Trigger wipes the room's messages, then broadcasts the panic notice.
// Returns the number of messages removed.
func (p *PanicController) Trigger(ctx context.Context, roomID string) (int64, error) {
	if roomID == "" {
		return 0, ErrValidation
	}

	count, err := p.ledger.Wipe(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("panic wipe: %w", err)
	}

	observability.IncPanicWipe()
	p.broadcaster.Broadcast(roomID, "panic-mode", models.ErrorEvent{
		Message: "All messages have been cleared due to panic mode",
	})
	return count, nil
}
