// Package toolcall defines the closed tool enumeration, the governance
// mode each tool is statically bound to, and the per-call state machine
// the governor drives.
package toolcall

import (
	"time"
)

// Tool is a closed, enumerated action identifier. The governor's mode
// mapping and the per-category allow-lists are both defined over this
// set, so containment checks are exhaustive rather than string lookups.
type Tool string

const (
	ToolGetSubscription    Tool = "get_subscription"
	ToolGetCustomerHistory Tool = "get_customer_history"
	ToolGetPaymentHistory  Tool = "get_payment_history"
	ToolGenerateCancelLink Tool = "generate_cancel_link"

	ToolTrackPackage   Tool = "track_package"
	ToolGetBoxContents Tool = "get_box_contents"

	ToolChangeFrequency   Tool = "change_frequency"
	ToolSkipMonth         Tool = "skip_month"
	ToolPauseSubscription Tool = "pause_subscription"
	ToolChangeAddress     Tool = "change_address"
	ToolCreateDamageClaim Tool = "create_damage_claim"
	ToolRequestPhotos     Tool = "request_photos"
)

// Mode is the governance mode of a tool. Derived from the static tool
// table, never inferred from call content.
type Mode string

const (
	// ModeReadOnly calls execute immediately and synchronously; results
	// feed back into the reply body.
	ModeReadOnly Mode = "read_only"
	// ModeConfirm calls never execute without an explicit external
	// approval signal.
	ModeConfirm Mode = "confirm_required"
	// ModeDisplay calls trigger a read-only fetch whose result is shown
	// to the user without approval.
	ModeDisplay Mode = "display_only"
)

// modeOf is the static tool→mode table.
var modeOf = map[Tool]Mode{
	ToolGetSubscription:    ModeReadOnly,
	ToolGetCustomerHistory: ModeReadOnly,
	ToolGetPaymentHistory:  ModeReadOnly,
	ToolGenerateCancelLink: ModeReadOnly,

	ToolTrackPackage:   ModeDisplay,
	ToolGetBoxContents: ModeDisplay,

	ToolChangeFrequency:   ModeConfirm,
	ToolSkipMonth:         ModeConfirm,
	ToolPauseSubscription: ModeConfirm,
	ToolChangeAddress:     ModeConfirm,
	ToolCreateDamageClaim: ModeConfirm,
	ToolRequestPhotos:     ModeConfirm,
}

// ModeOf returns the governance mode for t and whether t is a known tool.
func ModeOf(t Tool) (Mode, bool) {
	m, ok := modeOf[t]
	return m, ok
}

// State is the lifecycle state of a proposed tool call.
type State string

const (
	StateProposed     State = "proposed"
	StateExecuting    State = "executing"
	StateCompleted    State = "completed"
	StateAwaiting     State = "awaiting_confirmation"
	StateConfirmed    State = "confirmed"
	StateRejected     State = "rejected"
	StateCancelled    State = "cancelled"
	StateFetching     State = "fetching"
	StateDisplayed    State = "displayed"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateDisplayed:
		return true
	}
	return false
}

// ProposedCall is a candidate action suggested by the generator, keyed
// back to its turn. Mode is derived at proposal time from the static table.
type ProposedCall struct {
	ID        string            `json:"id"`
	TurnID    string            `json:"turn_id"`
	SessionID string            `json:"session_id"`
	Tool      Tool              `json:"tool"`
	Args      map[string]string `json:"args"`
	Mode      Mode              `json:"mode"`
	State     State             `json:"state"`
	Result    string            `json:"result,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
