package service_test

import (
	"strings"
	"testing"

	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/service"
)

func TestAssembler_Assemble_FullComposition(t *testing.T) {
	a := service.NewAssembler()

	out := a.Assemble("Your box ships Friday.", "Sarah", classify.CategoryShipping, "sess-1", service.GovernOutcome{})

	if !strings.HasPrefix(out, "Dear Sarah,") {
		t.Errorf("greeting missing: %q", out)
	}
	if !strings.Contains(out, "Your box ships Friday.") {
		t.Error("body missing")
	}
	if !strings.Contains(out, "Warm regards,") {
		t.Error("sign-off missing")
	}
}

func TestAssembler_Assemble_DeterministicPerSession(t *testing.T) {
	a := service.NewAssembler()

	first := a.Assemble("Body.", "Sarah", classify.CategoryShipping, "sess-1", service.GovernOutcome{})
	second := a.Assemble("Body.", "Sarah", classify.CategoryShipping, "sess-1", service.GovernOutcome{})
	if first != second {
		t.Error("same session must compose identically")
	}
}

func TestAssembler_Assemble_MissingNameFallsBack(t *testing.T) {
	a := service.NewAssembler()

	out := a.Assemble("Body.", "", classify.CategoryGratitude, "sess-1", service.GovernOutcome{})
	if !strings.HasPrefix(out, "Hello,") {
		t.Errorf("expected generic salutation, got %q", out)
	}
}

func TestAssembler_Assemble_StripsDuplicateGreeting(t *testing.T) {
	a := service.NewAssembler()

	out := a.Assemble("Dear Sarah,\nYour box ships Friday.", "Sarah", classify.CategoryShipping, "sess-1", service.GovernOutcome{})
	if strings.Count(out, "Dear Sarah,") != 1 {
		t.Errorf("duplicate greeting not stripped:\n%s", out)
	}
}

func TestAssembler_Assemble_SystemResponsePassesThrough(t *testing.T) {
	a := service.NewAssembler()

	raw := "I understand this is a serious matter. I'm connecting you with a support agent who can help you right away."
	out := a.Assemble(raw, "Sarah", classify.CategoryShipping, "sess-1", service.GovernOutcome{})
	if out != raw {
		t.Errorf("system response was wrapped:\n%s", out)
	}
}

func TestAssembler_Assemble_CancelLinkSubstitution(t *testing.T) {
	a := service.NewAssembler()

	outcome := service.GovernOutcome{Executed: []toolcall.ProposedCall{{
		Tool:   toolcall.ToolGenerateCancelLink,
		State:  toolcall.StateCompleted,
		Result: `{"cancel_url":"https://account.example.com/cancel?s=SUB-0001"}`,
	}}}
	out := a.Assemble("You can cancel anytime here: [CANCEL_LINK]", "Sarah", classify.CategoryRetentionPrimary, "sess-1", outcome)

	if strings.Contains(out, "[CANCEL_LINK]") {
		t.Error("placeholder not substituted")
	}
	if !strings.Contains(out, "https://account.example.com/cancel?s=SUB-0001") {
		t.Error("cancel url missing")
	}
}

func TestAssembler_Assemble_PendingActionNote(t *testing.T) {
	a := service.NewAssembler()

	outcome := service.GovernOutcome{Pending: []toolcall.ProposedCall{{
		Tool:  toolcall.ToolPauseSubscription,
		State: toolcall.StateAwaiting,
	}}}
	out := a.Assemble("I can set that up for you.", "Sarah", classify.CategorySkipOrPause, "sess-1", outcome)

	if !strings.Contains(out, "Nothing has been changed yet") {
		t.Errorf("pending note missing:\n%s", out)
	}
	if !strings.Contains(out, "pause request") {
		t.Errorf("pending phrase missing:\n%s", out)
	}
}

func TestAssembler_Assemble_TrackingAppendedWhenAbsent(t *testing.T) {
	a := service.NewAssembler()

	outcome := service.GovernOutcome{Executed: []toolcall.ProposedCall{{
		Tool:   toolcall.ToolTrackPackage,
		State:  toolcall.StateDisplayed,
		Result: `{"tracking_number":"TRK00001234","status":"in_transit","eta":"2026-08-28"}`,
	}}}
	out := a.Assemble("Your box is on the way.", "Sarah", classify.CategoryShipping, "sess-1", outcome)

	if !strings.Contains(out, "TRK00001234") {
		t.Errorf("tracking details missing:\n%s", out)
	}
}
