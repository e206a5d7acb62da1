package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/service"
)

func testTurn() *turn.ConversationTurn {
	return &turn.ConversationTurn{
		ID:        "turn-1",
		SessionID: "sess-1",
		Text:      "Where is my package?",
		Channel:   turn.ChannelWidget,
		CreatedAt: time.Now(),
	}
}

func newTestGenerator(llm *fakeLLM, know *fakeKnowledge) *service.Generator {
	inf := testInference()
	return service.NewGenerator(llm, know, service.NewCatalog(inf), inf, testKnowledgeCfg())
}

func TestGenerator_Generate_BodyAndCalls(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("gen", `{"body":"Your box is on the way.","tool_calls":[{"tool":"get_subscription","args":{"customer_email":"s@example.com"}},{"tool":"track_package","args":{}}]}`)
	know := &fakeKnowledge{}

	g := newTestGenerator(llm, know)
	body, calls, err := g.Generate(context.Background(), testTurn(), classify.CategoryShipping, &bundle.Bundle{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if body != "Your box is on the way." {
		t.Errorf("body = %q", body)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Mode != toolcall.ModeReadOnly || calls[1].Mode != toolcall.ModeDisplay {
		t.Errorf("modes = %s/%s, want read_only/display_only", calls[0].Mode, calls[1].Mode)
	}
	for _, c := range calls {
		if c.State != toolcall.StateProposed {
			t.Errorf("state = %s, want proposed", c.State)
		}
		if c.TurnID != "turn-1" || c.SessionID != "sess-1" {
			t.Errorf("correlation ids not set: %+v", c)
		}
		if c.ID == "" {
			t.Error("call id not assigned")
		}
	}
	// The shipping partition was queried.
	if len(know.searches) != 1 || know.searches[0] != "shipping" {
		t.Errorf("knowledge searches = %v, want [shipping]", know.searches)
	}
}

func TestGenerator_Generate_AllowListContainment(t *testing.T) {
	llm := newFakeLLM()
	// pause_subscription is a real tool but not in the shipping allow-list;
	// teleport_box does not exist at all.
	llm.respond("gen", `{"body":"Done.","tool_calls":[{"tool":"pause_subscription","args":{}},{"tool":"teleport_box","args":{}},{"tool":"get_subscription","args":{}}]}`)

	g := newTestGenerator(llm, &fakeKnowledge{})
	_, calls, err := g.Generate(context.Background(), testTurn(), classify.CategoryShipping, &bundle.Bundle{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want only the allow-listed one", len(calls))
	}
	if calls[0].Tool != toolcall.ToolGetSubscription {
		t.Errorf("surviving call = %s, want get_subscription", calls[0].Tool)
	}
}

func TestGenerator_Generate_UnknownCategoryHasNoTools(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("gen", `{"body":"I'll look into this.","tool_calls":[{"tool":"get_subscription","args":{}}]}`)

	g := newTestGenerator(llm, &fakeKnowledge{})
	_, calls, err := g.Generate(context.Background(), testTurn(), classify.CategoryUnknown, &bundle.Bundle{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("unknown category proposed %d calls, want 0", len(calls))
	}
}

func TestGenerator_Generate_InferenceFailure(t *testing.T) {
	llm := newFakeLLM()
	llm.fail("gen", errors.New("gateway timeout"))

	g := newTestGenerator(llm, &fakeKnowledge{})
	if _, _, err := g.Generate(context.Background(), testTurn(), classify.CategoryShipping, &bundle.Bundle{}); err == nil {
		t.Fatal("expected error from failed generation")
	}
}

func TestGenerator_Generate_EmptyBodyIsAnError(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("gen", `{"body":"  ","tool_calls":[]}`)

	g := newTestGenerator(llm, &fakeKnowledge{})
	if _, _, err := g.Generate(context.Background(), testTurn(), classify.CategoryShipping, &bundle.Bundle{}); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestGenerator_Generate_KnowledgeFailureIsNotFatal(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("gen", `{"body":"Here is what I found.","tool_calls":[]}`)
	know := &fakeKnowledge{err: errors.New("store down")}

	g := newTestGenerator(llm, know)
	body, _, err := g.Generate(context.Background(), testTurn(), classify.CategoryShipping, &bundle.Bundle{})
	if err != nil {
		t.Fatalf("knowledge failure must not fail generation: %v", err)
	}
	if body == "" {
		t.Error("expected a body")
	}
}
