package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/service"
)

const passingJudge = `{"decision":"send","confidence":"high","checks":[
	{"name":"safety","passed":true,"score":0.97},
	{"name":"tone","passed":true,"score":0.9},
	{"name":"accuracy","passed":true,"score":0.85},
	{"name":"completeness","passed":true,"score":0.8}]}`

func newTestGate(llm *fakeLLM) *service.Gate {
	return service.NewGate(llm, testInference(), testPipeline())
}

func cleanSignal() service.Signal {
	return service.Signal{Confidence: turn.ConfidenceHigh}
}

func TestGate_Evaluate_FastFailSkipsJudge(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(),
		"Good news! I have cancelled your subscription effective today.",
		classify.CategoryRetentionPrimary, true, cleanSignal(), nil)

	if res.Tier != turn.TierFastFail {
		t.Errorf("tier = %s, want fast-fail", res.Tier)
	}
	if res.Disposition != turn.DispositionEscalate {
		t.Errorf("disposition = %s, want escalate for confirmed_cancellation", res.Disposition)
	}
	if len(res.Reasons) == 0 {
		t.Error("non-send disposition must carry reasons")
	}
	// Tier 2 is never consulted after a Tier 1 match.
	if llm.callCount("judge") != 0 {
		t.Errorf("judge calls = %d, want 0", llm.callCount("judge"))
	}
}

func TestGate_Evaluate_ViolationDispositions(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  turn.Disposition
	}{
		{"confirmed cancellation escalates", "We have canceled your subscription.", turn.DispositionEscalate},
		{"confirmed refund escalates", "I have processed a refund for you.", turn.DispositionEscalate},
		{"confirmed pause drafts", "I've paused your subscription for a month.", turn.DispositionDraft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newTestGate(newFakeLLM())
			res := gate.Evaluate(context.Background(), testTurn(), tt.reply,
				classify.CategorySkipOrPause, true, cleanSignal(), nil)
			if res.Tier != turn.TierFastFail {
				t.Fatalf("tier = %s, want fast-fail", res.Tier)
			}
			if res.Disposition != tt.want {
				t.Errorf("disposition = %s, want %s", res.Disposition, tt.want)
			}
		})
	}
}

func TestGate_Evaluate_SendPath(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(),
		"Thank you so much for your kind words!",
		classify.CategoryGratitude, true, cleanSignal(), nil)

	if res.Disposition != turn.DispositionSend {
		t.Fatalf("disposition = %s (%v), want send", res.Disposition, res.Reasons)
	}
	if res.Tier != turn.TierJudge {
		t.Errorf("tier = %s, want judge", res.Tier)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("send must carry no reasons, got %v", res.Reasons)
	}
	if len(res.Checks) != 4 {
		t.Errorf("checks = %d, want 4", len(res.Checks))
	}
}

func TestGate_Evaluate_OutstandingSignalBlocksSend(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	sig := service.Signal{IsOutstanding: true, Trigger: "repeated_damage", Confidence: turn.ConfidenceHigh}
	res := gate.Evaluate(context.Background(), testTurn(), "All sorted.",
		classify.CategoryDamageReport, true, sig, nil)

	if res.Disposition == turn.DispositionSend {
		t.Fatal("outstanding signal must block send regardless of judge score")
	}
	if len(res.Reasons) == 0 {
		t.Error("expected reasons on a non-send disposition")
	}
}

func TestGate_Evaluate_DegradedDetectorBlocksSend(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	sig := service.Signal{Confidence: turn.ConfidenceLow, Degraded: true}
	res := gate.Evaluate(context.Background(), testTurn(), "All sorted.",
		classify.CategoryShipping, true, sig, nil)

	if res.Disposition == turn.DispositionSend {
		t.Fatal("low-confidence risk screening must block send")
	}
}

func TestGate_Evaluate_SubThresholdScoreBlocksSend(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", `{"decision":"send","confidence":"high","checks":[
		{"name":"safety","passed":true,"score":0.95},
		{"name":"tone","passed":true,"score":0.9},
		{"name":"accuracy","passed":true,"score":0.5,"detail":"claims not backed by tools"},
		{"name":"completeness","passed":true,"score":0.8}]}`)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(), "Your refund will arrive tomorrow by drone.",
		classify.CategoryPayment, true, cleanSignal(), nil)

	if res.Disposition != turn.DispositionDraft {
		t.Errorf("disposition = %s, want draft for sub-threshold accuracy", res.Disposition)
	}
}

func TestGate_Evaluate_SafetyHasStricterThreshold(t *testing.T) {
	llm := newFakeLLM()
	// 0.8 clears the general threshold but not the safety floor of 0.9.
	llm.respond("judge", `{"decision":"send","confidence":"high","checks":[
		{"name":"safety","passed":true,"score":0.8},
		{"name":"tone","passed":true,"score":0.9},
		{"name":"accuracy","passed":true,"score":0.9},
		{"name":"completeness","passed":true,"score":0.9}]}`)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(), "Sure, that should be fine.",
		classify.CategoryPayment, true, cleanSignal(), nil)

	if res.Disposition != turn.DispositionDraft {
		t.Errorf("disposition = %s, want draft when safety < 0.9", res.Disposition)
	}
}

func TestGate_Evaluate_UnknownCategoryDrafts(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(), "Happy to help with that.",
		classify.CategoryUnknown, true, cleanSignal(), nil)

	if res.Disposition != turn.DispositionDraft {
		t.Fatalf("disposition = %s, want draft for unknown category", res.Disposition)
	}
	found := false
	for _, r := range res.Reasons {
		if r == "unclassified" {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v, want to include %q", res.Reasons, "unclassified")
	}
}

func TestGate_Evaluate_UnidentifiedAloneCanStillSend(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	// An anonymous thank-you with a known category may go out.
	res := gate.Evaluate(context.Background(), testTurn(), "Thank you for your kind words!",
		classify.CategoryGratitude, false, cleanSignal(), nil)

	if res.Disposition != turn.DispositionSend {
		t.Errorf("disposition = %s (%v), want send", res.Disposition, res.Reasons)
	}
}

func TestGate_Evaluate_JudgeFailureDrafts(t *testing.T) {
	llm := newFakeLLM()
	llm.fail("judge", errors.New("gateway timeout"))
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(), "Here's your answer.",
		classify.CategoryShipping, true, cleanSignal(), nil)

	// The absence of a judge decision is never approval.
	if res.Disposition != turn.DispositionDraft {
		t.Errorf("disposition = %s, want draft", res.Disposition)
	}
	if res.Confidence != turn.ConfidenceLow {
		t.Errorf("confidence = %q, want low", res.Confidence)
	}
	if len(res.Reasons) == 0 {
		t.Error("expected reasons")
	}
}

func TestGate_Evaluate_NonHighConfidenceBlocksSend(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", `{"decision":"send","confidence":"medium","checks":[
		{"name":"safety","passed":true,"score":0.95},
		{"name":"tone","passed":true,"score":0.9},
		{"name":"accuracy","passed":true,"score":0.9},
		{"name":"completeness","passed":true,"score":0.9}]}`)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(), "Should be fine.",
		classify.CategoryShipping, true, cleanSignal(), nil)

	if res.Disposition != turn.DispositionDraft {
		t.Errorf("disposition = %s, want draft for medium confidence", res.Disposition)
	}
}

func TestGate_Evaluate_JudgeEscalation(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", `{"decision":"escalate","confidence":"high","checks":[
		{"name":"safety","passed":false,"score":0.2,"detail":"customer explicitly demands a human"}]}`)
	gate := newTestGate(llm)

	res := gate.Evaluate(context.Background(), testTurn(), "Let me try once more.",
		classify.CategoryPayment, true, cleanSignal(), nil)

	if res.Disposition != turn.DispositionEscalate {
		t.Errorf("disposition = %s, want escalate", res.Disposition)
	}
}

func TestGate_Evaluate_ToolResultsReachTheJudge(t *testing.T) {
	llm := newFakeLLM()
	llm.respond("judge", passingJudge)
	gate := newTestGate(llm)

	executed := []toolcall.ProposedCall{{
		Tool:   toolcall.ToolTrackPackage,
		State:  toolcall.StateDisplayed,
		Result: `{"tracking_number":"TRK00001234"}`,
	}}
	res := gate.Evaluate(context.Background(), testTurn(),
		"Your package TRK00001234 is in transit.",
		classify.CategoryShipping, true, cleanSignal(), executed)

	if res.Disposition != turn.DispositionSend {
		t.Errorf("disposition = %s (%v), want send", res.Disposition, res.Reasons)
	}
}
