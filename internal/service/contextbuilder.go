package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain"
	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/port/database"
	"github.com/clearfield/triage/internal/port/directory"
)

// summaryChars caps the content of summarized (older) history entries.
const summaryChars = 140

// ContextBuilder assembles the bounded evidence bundle for a turn:
// identity, account facts, truncated history, and any prior risk flag.
// Every sub-lookup is bounded by its own timeout; a failed lookup omits
// the field, it never blocks the turn.
type ContextBuilder struct {
	dir   directory.Lookup
	store database.Store
	cfg   config.Pipeline
}

// NewContextBuilder creates a context builder.
func NewContextBuilder(dir directory.Lookup, store database.Store, cfg config.Pipeline) *ContextBuilder {
	return &ContextBuilder{dir: dir, store: store, cfg: cfg}
}

// Assemble builds the bundle for a session. identifier may be empty; an
// unidentified customer yields a bundle without an identity record.
func (b *ContextBuilder) Assemble(ctx context.Context, identifier, sessionID string) *bundle.Bundle {
	out := &bundle.Bundle{}

	if identifier != "" {
		out.Identity = b.lookupIdentity(ctx, identifier)
	}
	if out.Identity != nil {
		out.Facts = b.lookupFacts(ctx, out.Identity.CustomerID)
	}
	out.History = b.lookupHistory(ctx, sessionID)
	out.RiskFlag = b.lookupRiskFlag(ctx, sessionID)

	b.truncate(out)
	out.CharCount = len(out.Render())
	return out
}

func (b *ContextBuilder) lookupIdentity(ctx context.Context, identifier string) *bundle.Identity {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.LookupTimeout)
	defer cancel()

	id, err := b.dir.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("identity lookup failed", "error", err)
		}
		return nil
	}
	return id
}

func (b *ContextBuilder) lookupFacts(ctx context.Context, customerID string) []bundle.AccountFact {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.LookupTimeout)
	defer cancel()

	facts, err := b.dir.AccountFacts(ctx, customerID, b.cfg.MaxAccountFacts)
	if err != nil {
		slog.Warn("account facts lookup failed", "customer_id", customerID, "error", err)
		return nil
	}
	return facts
}

func (b *ContextBuilder) lookupHistory(ctx context.Context, sessionID string) []bundle.HistoryEntry {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.LookupTimeout)
	defer cancel()

	// Fetch more than the verbatim window so older turns can be carried
	// as summaries instead of dropped outright.
	history, err := b.store.RecentTurns(ctx, sessionID, b.cfg.MaxHistoryTurns*3)
	if err != nil {
		slog.Warn("history lookup failed", "session_id", sessionID, "error", err)
		return nil
	}
	return history
}

func (b *ContextBuilder) lookupRiskFlag(ctx context.Context, sessionID string) string {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.LookupTimeout)
	defer cancel()

	flag, err := b.store.RiskFlag(ctx, sessionID)
	if err != nil {
		slog.Warn("risk flag lookup failed", "session_id", sessionID, "error", err)
		return ""
	}
	return flag
}

// truncate enforces the bundle size bound. The most recent turns stay
// verbatim, older turns are summarized in place, and if the character
// budget is still exceeded the oldest entries are dropped first. The
// newest entry is never dropped.
func (b *ContextBuilder) truncate(out *bundle.Bundle) {
	// History is most-recent-first: index 0 is the newest.
	for i := range out.History {
		if i < b.cfg.MaxHistoryTurns {
			continue
		}
		e := &out.History[i]
		if !e.Summarized {
			e.Content = summarize(e.Content)
			e.Summarized = true
		}
	}

	for len(out.History) > 1 && len(out.Render()) > b.cfg.MaxContextChars {
		out.History = out.History[:len(out.History)-1]
	}
}

func summarize(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= summaryChars {
		return content
	}
	cut := strings.LastIndex(content[:summaryChars], " ")
	if cut <= 0 {
		cut = summaryChars
	}
	return content[:cut] + "…"
}
