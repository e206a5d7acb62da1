package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/service"
)

func historyOf(n int) []bundle.HistoryEntry {
	// Most-recent-first, like the store returns.
	entries := make([]bundle.HistoryEntry, n)
	for i := 0; i < n; i++ {
		role := "customer"
		if i%2 == 1 {
			role = "agent"
		}
		entries[i] = bundle.HistoryEntry{
			Role:    role,
			Content: fmt.Sprintf("message number %d with a reasonable amount of text in it", n-i),
			At:      time.Now().Add(-time.Duration(i) * time.Minute),
		}
	}
	return entries
}

func TestContextBuilder_Assemble_FullBundle(t *testing.T) {
	dir := &fakeDirectory{
		identity: &bundle.Identity{CustomerID: "CUST-1", Name: "Sarah", Email: "sarah@example.com"},
		facts:    []bundle.AccountFact{{Kind: "subscription", Detail: "active, monthly"}},
	}
	store := newFakeStore()
	store.history = historyOf(2)
	store.riskFlag = "repeated_complaint"

	b := service.NewContextBuilder(dir, store, testPipeline())
	bnd := b.Assemble(context.Background(), "sarah@example.com", "sess-1")

	if !bnd.Identified() {
		t.Fatal("expected identified bundle")
	}
	if len(bnd.Facts) != 1 {
		t.Errorf("facts = %d, want 1", len(bnd.Facts))
	}
	if len(bnd.History) != 2 {
		t.Errorf("history = %d, want 2", len(bnd.History))
	}
	if bnd.RiskFlag != "repeated_complaint" {
		t.Errorf("risk flag = %q", bnd.RiskFlag)
	}
	if bnd.CharCount == 0 {
		t.Error("char count not set")
	}
}

func TestContextBuilder_Assemble_UnidentifiedIsNotAnError(t *testing.T) {
	b := service.NewContextBuilder(&fakeDirectory{}, newFakeStore(), testPipeline())
	bnd := b.Assemble(context.Background(), "stranger@example.com", "sess-2")

	if bnd.Identified() {
		t.Error("unknown identifier must yield an unidentified bundle")
	}
	if !strings.Contains(bnd.Render(), "not identified") {
		t.Error("rendered bundle should state the customer is not identified")
	}
}

func TestContextBuilder_Assemble_LookupFailuresOmitFields(t *testing.T) {
	dir := &fakeDirectory{
		idErr:    errors.New("directory down"),
		factsErr: errors.New("unreachable"),
	}
	store := newFakeStore()
	store.historyErr = errors.New("db down")
	store.riskErr = errors.New("db down")

	b := service.NewContextBuilder(dir, store, testPipeline())
	bnd := b.Assemble(context.Background(), "sarah@example.com", "sess-3")

	// Every sub-lookup failed; the bundle is still returned, just empty.
	if bnd.Identified() || len(bnd.Facts) != 0 || len(bnd.History) != 0 || bnd.RiskFlag != "" {
		t.Errorf("partial failures must omit fields, got %+v", bnd)
	}
}

func TestContextBuilder_Assemble_OlderTurnsSummarized(t *testing.T) {
	store := newFakeStore()
	store.history = historyOf(6) // beyond the verbatim window of 3

	b := service.NewContextBuilder(&fakeDirectory{}, store, testPipeline())
	bnd := b.Assemble(context.Background(), "", "sess-4")

	for i, e := range bnd.History {
		if i < 3 && e.Summarized {
			t.Errorf("entry %d inside the verbatim window was summarized", i)
		}
		if i >= 3 && !e.Summarized {
			t.Errorf("entry %d outside the verbatim window was not summarized", i)
		}
	}
}

func TestContextBuilder_Assemble_NeverDropsNewestTurn(t *testing.T) {
	store := newFakeStore()
	long := strings.Repeat("a very long conversation turn ", 40)
	store.history = []bundle.HistoryEntry{
		{Role: "customer", Content: "newest: where is my box?"},
		{Role: "agent", Content: long},
		{Role: "customer", Content: long},
		{Role: "agent", Content: long},
	}

	cfg := testPipeline()
	cfg.MaxContextChars = 300 // force truncation
	b := service.NewContextBuilder(&fakeDirectory{}, store, cfg)
	bnd := b.Assemble(context.Background(), "", "sess-5")

	if len(bnd.History) == 0 {
		t.Fatal("history emptied; the newest turn must survive truncation")
	}
	if !strings.HasPrefix(bnd.History[0].Content, "newest:") {
		t.Errorf("newest entry dropped, history[0] = %q", bnd.History[0].Content)
	}
	// Oldest entries were dropped first.
	if len(bnd.History) == 4 {
		t.Error("expected truncation to drop older entries")
	}
}
