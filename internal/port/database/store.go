// Package database defines the persistence port (interface).
package database

import (
	"context"
	"time"

	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/domain/turn"
)

// TurnRecord is the finalized turn row written after the disposition is
// reached. The store receives copies, never live pipeline references.
type TurnRecord struct {
	Turn           turn.ConversationTurn
	Classification classify.Result
	Reply          string
	Eval           turn.EvalResult
	Outstanding    bool
	Trigger        string
	ProcessingMS   int64
}

// Store is the persistence port for turns, conversation history, and
// suspended tool calls. Suspension across a confirmation boundary is
// persisted state, not a parked goroutine, so awaiting calls live here.
type Store interface {
	// AppendTurn persists the finalized turn, both message rows, and the
	// eval record. Called exactly once per turn, after the disposition.
	AppendTurn(ctx context.Context, rec *TurnRecord) error

	// RecentTurns returns up to limit history entries for the session,
	// most-recent-first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]bundle.HistoryEntry, error)

	// RiskFlag returns the active outstanding trigger recorded by a prior
	// turn in this session, or "" when none is active.
	RiskFlag(ctx context.Context, sessionID string) (string, error)

	// CreateToolCall persists a proposed call (including awaiting ones).
	CreateToolCall(ctx context.Context, call *toolcall.ProposedCall) error

	// GetToolCall loads a call by ID. Returns domain.ErrNotFound if absent.
	GetToolCall(ctx context.Context, id string) (*toolcall.ProposedCall, error)

	// UpdateToolCallState transitions a call and records its result.
	UpdateToolCallState(ctx context.Context, id string, state toolcall.State, result string) error

	// ExpireAwaiting transitions calls stuck in awaiting_confirmation
	// longer than the deadline to rejected, returning the expired calls.
	ExpireAwaiting(ctx context.Context, olderThan time.Time) ([]toolcall.ProposedCall, error)
}
