package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/port/knowledge"
	"github.com/clearfield/triage/internal/service"
)

func TestDetector_Detect_Outstanding(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("det", `{"is_outstanding":true,"trigger":"third_damaged_box","confidence":"high"}`)
	know := &fakeKnowledge{docs: map[string][]knowledge.Document{
		"outstanding-cases": {{ID: "c1", Content: "customer received damaged boxes three months in a row", Score: 0.92}},
	}}

	d := service.NewDetector(llm, know, testInference(), testKnowledgeCfg())
	sig := d.Detect(context.Background(), "This is the third damaged box in a row!", classify.CategoryDamageReport)

	if !sig.IsOutstanding {
		t.Fatal("expected outstanding signal")
	}
	if sig.Trigger != "third_damaged_box" {
		t.Errorf("trigger = %q", sig.Trigger)
	}
	if sig.Degraded {
		t.Error("healthy detection must not be degraded")
	}
	if len(know.searches) != 1 || know.searches[0] != "outstanding-cases" {
		t.Errorf("searches = %v, want [outstanding-cases]", know.searches)
	}
}

func TestDetector_Detect_NotOutstandingClearsTrigger(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("det", `{"is_outstanding":false,"trigger":"leftover","confidence":"high"}`)

	d := service.NewDetector(llm, &fakeKnowledge{}, testInference(), testKnowledgeCfg())
	sig := d.Detect(context.Background(), "Where is my box?", classify.CategoryShipping)

	if sig.IsOutstanding || sig.Trigger != "" {
		t.Errorf("sig = %+v, want clean", sig)
	}
}

func TestDetector_Detect_FailureDegrades(t *testing.T) {
	llm := newFakeLLM()
	llm.fail("det", errors.New("timeout"))

	d := service.NewDetector(llm, &fakeKnowledge{}, testInference(), testKnowledgeCfg())
	sig := d.Detect(context.Background(), "Where is my box?", classify.CategoryShipping)

	if sig.IsOutstanding {
		t.Error("detector failure must not flag the case outstanding")
	}
	if !sig.Degraded {
		t.Error("detector failure must set the degraded flag")
	}
	if sig.Confidence != turn.ConfidenceLow {
		t.Errorf("confidence = %q, want low", sig.Confidence)
	}
}

func TestDetector_Detect_KnowledgeFailureStillDetects(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("det", `{"is_outstanding":false,"trigger":"none","confidence":"medium"}`)

	d := service.NewDetector(llm, &fakeKnowledge{err: errors.New("down")}, testInference(), testKnowledgeCfg())
	sig := d.Detect(context.Background(), "Where is my box?", classify.CategoryShipping)

	if sig.Degraded {
		t.Error("a knowledge failure alone must not degrade the signal")
	}
	if sig.Confidence != turn.ConfidenceMedium {
		t.Errorf("confidence = %q, want medium", sig.Confidence)
	}
}
