// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subject constants for the confirmation protocol and turn lifecycle.
const (
	// SubjectAwaitingConfirmation carries a confirm-required call that is
	// paused until an external approve/reject signal arrives.
	SubjectAwaitingConfirmation = "turns.toolcall.awaiting"
	// SubjectCallConfirmed carries the result of an approved-and-executed call.
	SubjectCallConfirmed = "turns.toolcall.confirmed"
	// SubjectCallCancelled announces a rejected or expired call.
	SubjectCallCancelled = "turns.toolcall.cancelled"
	// SubjectTurnFinalized announces a turn's terminal disposition.
	SubjectTurnFinalized = "turns.finalized"
)

// AwaitingConfirmationEvent is the payload published on SubjectAwaitingConfirmation.
type AwaitingConfirmationEvent struct {
	CallID    string            `json:"call_id"`
	TurnID    string            `json:"turn_id"`
	SessionID string            `json:"session_id"`
	Tool      string            `json:"tool"`
	Args      map[string]string `json:"args"`
}

// CallResolvedEvent is the payload for confirmed and cancelled subjects.
type CallResolvedEvent struct {
	CallID   string `json:"call_id"`
	TurnID   string `json:"turn_id"`
	Tool     string `json:"tool"`
	Approved bool   `json:"approved"`
	Result   string `json:"result,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TurnFinalizedEvent is the payload published on SubjectTurnFinalized.
type TurnFinalizedEvent struct {
	TurnID      string `json:"turn_id"`
	SessionID   string `json:"session_id"`
	Category    string `json:"category"`
	Disposition string `json:"disposition"`
}
