// Package bundle defines the context bundle: the bounded evidence package
// assembled per turn for the response generator.
package bundle

import (
	"fmt"
	"strings"
	"time"
)

// Identity is the customer record resolved from an extracted identifier.
// Absence of an identity is not an error; downstream components must
// tolerate an unidentified customer.
type Identity struct {
	CustomerID  string    `json:"customer_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	MemberSince time.Time `json:"member_since"`
	TotalOrders int       `json:"total_orders"`
	Lifetime    float64   `json:"lifetime_value"`
}

// AccountFact is one recent account-state item (subscription status,
// a transaction, an open claim).
type AccountFact struct {
	Kind   string `json:"kind"` // "subscription" | "transaction" | "claim"
	Detail string `json:"detail"`
}

// HistoryEntry is one prior turn in the conversation, most-recent-first.
// Summarized entries preserve order; history is never reordered.
type HistoryEntry struct {
	Role       string    `json:"role"` // "customer" | "agent"
	Content    string    `json:"content"`
	Summarized bool      `json:"summarized"`
	At         time.Time `json:"at"`
}

// Bundle is the assembled evidence for one turn. Size is bounded by the
// assembler's character budget; truncation is deterministic and never
// drops the newest entry.
type Bundle struct {
	Identity  *Identity      `json:"identity,omitempty"`
	Facts     []AccountFact  `json:"facts,omitempty"`
	History   []HistoryEntry `json:"history,omitempty"`
	RiskFlag  string         `json:"risk_flag,omitempty"` // active outstanding trigger from a prior turn
	CharCount int            `json:"char_count"`
}

// Identified reports whether the customer was resolved.
func (b *Bundle) Identified() bool {
	return b.Identity != nil
}

// Render produces the prompt fragment the generator consumes.
func (b *Bundle) Render() string {
	var sb strings.Builder

	if b.Identity != nil {
		fmt.Fprintf(&sb, "[Customer: %s <%s>, member since %s, %d orders]\n",
			b.Identity.Name, b.Identity.Email,
			b.Identity.MemberSince.Format("2006-01-02"), b.Identity.TotalOrders)
	} else {
		sb.WriteString("[Customer: not identified]\n")
	}

	for _, f := range b.Facts {
		fmt.Fprintf(&sb, "[%s] %s\n", f.Kind, f.Detail)
	}

	if len(b.History) > 0 {
		sb.WriteString("[Conversation History]\n")
		// History is stored most-recent-first; render oldest-first.
		for i := len(b.History) - 1; i >= 0; i-- {
			h := b.History[i]
			role := "Customer"
			if h.Role == "agent" {
				role = "Agent"
			}
			if h.Summarized {
				fmt.Fprintf(&sb, "%s (summary): %s\n", role, h.Content)
			} else {
				fmt.Fprintf(&sb, "%s: %s\n", role, h.Content)
			}
		}
		sb.WriteString("[End History]\n")
	}

	if b.RiskFlag != "" {
		fmt.Fprintf(&sb, "[Active risk flag: %s, handle with extra care]\n", b.RiskFlag)
	}

	return sb.String()
}
