package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearfield/triage/internal/domain"
	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/port/database"
)

// Store implements database.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// AppendTurn persists the finalized turn: session upsert, both message
// rows, the eval record, and the session's risk flag, in one transaction.
func (s *Store) AppendTurn(ctx context.Context, rec *database.TurnRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	riskFlag := ""
	if rec.Outstanding {
		riskFlag = rec.Trigger
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (session_id, channel, risk_flag, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id) DO UPDATE
		SET risk_flag = CASE WHEN EXCLUDED.risk_flag <> '' THEN EXCLUDED.risk_flag ELSE sessions.risk_flag END,
		    updated_at = now()`,
		rec.Turn.SessionID, string(rec.Turn.Channel), riskFlag)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES ($1, $2, 'customer', $3, $4)`,
		rec.Turn.ID, rec.Turn.SessionID, rec.Turn.Text, rec.Turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert customer message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content)
		VALUES (gen_random_uuid(), $1, 'agent', $2)`,
		rec.Turn.SessionID, rec.Reply)
	if err != nil {
		return fmt.Errorf("insert agent message: %w", err)
	}

	checks, err := json.Marshal(orEmpty(rec.Eval.Checks))
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO eval_results
			(turn_id, session_id, category, secondary, urgency, sentiment,
			 disposition, confidence, tier, reasons, checks, outstanding, trigger, processing_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.Turn.ID, rec.Turn.SessionID,
		string(rec.Classification.Primary), string(rec.Classification.Secondary),
		string(rec.Classification.Urgency), string(rec.Classification.Sentiment),
		string(rec.Eval.Disposition), string(rec.Eval.Confidence), string(rec.Eval.Tier),
		pgTextArray(rec.Eval.Reasons), checks, rec.Outstanding, rec.Trigger, rec.ProcessingMS)
	if err != nil {
		return fmt.Errorf("insert eval result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit messages for the session, most-recent-first.
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]bundle.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	var entries []bundle.HistoryEntry
	for rows.Next() {
		var e bundle.HistoryEntry
		if err := rows.Scan(&e.Role, &e.Content, &e.At); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RiskFlag returns the session's active outstanding trigger, or "".
func (s *Store) RiskFlag(ctx context.Context, sessionID string) (string, error) {
	var flag string
	err := s.pool.QueryRow(ctx,
		`SELECT risk_flag FROM sessions WHERE session_id = $1`, sessionID).Scan(&flag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query risk flag: %w", err)
	}
	return flag, nil
}

// CreateToolCall persists a proposed call.
func (s *Store) CreateToolCall(ctx context.Context, call *toolcall.ProposedCall) error {
	args, err := json.Marshal(call.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tool_calls (id, turn_id, session_id, tool, args, mode, state, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		call.ID, call.TurnID, call.SessionID, string(call.Tool), args,
		string(call.Mode), string(call.State), call.Result, call.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// GetToolCall loads a call by ID.
func (s *Store) GetToolCall(ctx context.Context, id string) (*toolcall.ProposedCall, error) {
	var (
		call toolcall.ProposedCall
		args []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, turn_id, session_id, tool, args, mode, state, result, created_at, updated_at
		FROM tool_calls WHERE id = $1`, id).
		Scan(&call.ID, &call.TurnID, &call.SessionID, (*string)(&call.Tool), &args,
			(*string)(&call.Mode), (*string)(&call.State), &call.Result,
			&call.CreatedAt, &call.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query tool call: %w", err)
	}

	if err := json.Unmarshal(args, &call.Args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return &call, nil
}

// UpdateToolCallState transitions a call and records its result.
func (s *Store) UpdateToolCallState(ctx context.Context, id string, state toolcall.State, result string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tool_calls SET state = $2, result = $3, updated_at = now()
		WHERE id = $1`,
		id, string(state), result)
	if err != nil {
		return fmt.Errorf("update tool call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpireAwaiting rejects calls stuck awaiting confirmation past the deadline.
func (s *Store) ExpireAwaiting(ctx context.Context, olderThan time.Time) ([]toolcall.ProposedCall, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE tool_calls SET state = $1, updated_at = now()
		WHERE state = $2 AND created_at < $3
		RETURNING id, turn_id, session_id, tool, args, mode, state, result, created_at, updated_at`,
		string(toolcall.StateRejected), string(toolcall.StateAwaiting), olderThan)
	if err != nil {
		return nil, fmt.Errorf("expire awaiting: %w", err)
	}
	defer rows.Close()

	var expired []toolcall.ProposedCall
	for rows.Next() {
		var (
			call toolcall.ProposedCall
			args []byte
		)
		if err := rows.Scan(&call.ID, &call.TurnID, &call.SessionID, (*string)(&call.Tool), &args,
			(*string)(&call.Mode), (*string)(&call.State), &call.Result,
			&call.CreatedAt, &call.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan expired call: %w", err)
		}
		if err := json.Unmarshal(args, &call.Args); err != nil {
			return nil, fmt.Errorf("unmarshal args: %w", err)
		}
		expired = append(expired, call)
	}
	return expired, rows.Err()
}

// pgTextArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Ensures JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
