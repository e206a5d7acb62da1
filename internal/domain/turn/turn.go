// Package turn defines the domain model for one conversation turn:
// the inbound message, the two-tier evaluation result, and the terminal
// disposition the pipeline produces for it.
package turn

import (
	"strings"
	"time"

	"github.com/clearfield/triage/internal/domain/classify"
)

// Channel identifies the arrival surface of a message.
type Channel string

const (
	ChannelWidget Channel = "widget"
	ChannelEmail  Channel = "email"
	ChannelChat   Channel = "chat"
)

// ConversationTurn is one inbound message plus its processing identity.
// Immutable once classification begins.
type ConversationTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Channel   Channel   `json:"channel"`
	Sender    string    `json:"sender,omitempty"` // contact key supplied by the channel, if any
	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects empty or whitespace-only messages before any stage runs.
func (t *ConversationTurn) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Disposition is the terminal decision for a turn.
type Disposition string

const (
	DispositionSend     Disposition = "send"
	DispositionDraft    Disposition = "draft"
	DispositionEscalate Disposition = "escalate"
)

// Confidence is the ordered confidence scale attached to a disposition.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Tier names which evaluation tier produced the final disposition.
type Tier string

const (
	TierFastFail Tier = "fast-fail"
	TierJudge    Tier = "judge"
)

// Check is one judge-tier scoring dimension.
type Check struct {
	Name   string  `json:"name"` // safety, tone, accuracy, completeness
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// EvalResult is the terminal evaluation artifact for a turn.
// Reasons is non-empty whenever Disposition != send and empty when it is;
// the absence of reasons is the "why was this approved" signal.
type EvalResult struct {
	TurnID       string      `json:"turn_id"`
	Disposition  Disposition `json:"disposition"`
	Confidence   Confidence  `json:"confidence"`
	Tier         Tier        `json:"tier"`
	Reasons      []string    `json:"reasons,omitempty"`
	Checks       []Check     `json:"checks,omitempty"`
	NotPersisted bool        `json:"not_persisted,omitempty"`
}

// Result is what the orchestrator hands back to the caller: the reply body,
// the terminal evaluation, and any tool calls still awaiting confirmation.
type Result struct {
	Turn           ConversationTurn   `json:"turn"`
	Category       classify.Category  `json:"category"`
	Reply          string             `json:"reply"`
	Eval           EvalResult         `json:"eval"`
	PendingCallIDs []string           `json:"pending_call_ids,omitempty"`
	Classification classify.Result    `json:"classification"`
	ProcessingMS   int64              `json:"processing_ms"`
}
