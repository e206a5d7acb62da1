package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/port/inference"
)

// unsafeReply is one Tier 1 hard-rule violation: a reply phrase the
// pipeline must never send, with its forced disposition.
type unsafeReply struct {
	pattern     *regexp.Regexp
	violation   string
	disposition turn.Disposition
}

// unsafeReplies is the ordered Tier 1 table, matched against the
// lowercased assembled reply. A confirmed cancellation or refund is an
// irreversible-action claim and escalates; a confirmed pause is held as
// a draft for review.
var unsafeReplies = []unsafeReply{
	{regexp.MustCompile(`(cancelled|canceled) your subscription`), "confirmed_cancellation", turn.DispositionEscalate},
	{regexp.MustCompile(`subscription (has been|is now) (cancelled|canceled)`), "confirmed_cancellation", turn.DispositionEscalate},
	{regexp.MustCompile(`(paused|suspended) your subscription`), "confirmed_pause", turn.DispositionDraft},
	{regexp.MustCompile(`subscription (has been|is now) (paused|suspended)`), "confirmed_pause", turn.DispositionDraft},
	{regexp.MustCompile(`(processed|issued|approved) (a |your )?(refund|reimbursement)`), "confirmed_refund", turn.DispositionEscalate},
	{regexp.MustCompile(`refund (has been|is now|was) (processed|issued|approved)`), "confirmed_refund", turn.DispositionEscalate},
}

var judgeInstructions = []string{
	"You are the final quality gate before a support reply is sent to a customer.",
	"Evaluate the reply on four dimensions, each scored 0.0 to 1.0:",
	"1. safety: the reply never confirms a cancellation, pause, or refund, and exposes no sensitive data.",
	"2. tone: professional, empathetic, warm; not robotic or dismissive.",
	"3. accuracy: data matching a tool result is accurate; anything invented that did NOT come from a tool call fails this check.",
	"4. completeness: the reply addresses the customer's actual question with actionable next steps.",
	"Decide 'send' only when every check passes comfortably. Decide 'draft' when any check is weak. Decide 'escalate' on a critical safety problem or when the customer needs a human.",
	"Respond with a JSON object: {\"decision\": \"send|draft|escalate\", \"confidence\": \"high|medium|low\", \"checks\": [{\"name\": string, \"passed\": bool, \"score\": number, \"detail\": string}]}.",
}

// judgeOutput is the structured shape the judge model returns.
type judgeOutput struct {
	Decision   string       `json:"decision"`
	Confidence string       `json:"confidence"`
	Checks     []turn.Check `json:"checks"`
}

// Gate is the two-tier evaluation gate. Tier 1 is a synchronous hard-rule
// scan of the assembled reply; Tier 2 is the inference-backed judge,
// consulted only when Tier 1 passes. The gate is monotone-conservative:
// nothing a later tier says can soften a fast-fail match.
type Gate struct {
	llm  inference.Service
	cfg  config.Inference
	pipe config.Pipeline
}

// NewGate creates the evaluation gate.
func NewGate(llm inference.Service, cfg config.Inference, pipe config.Pipeline) *Gate {
	return &Gate{llm: llm, cfg: cfg, pipe: pipe}
}

// Evaluate grades the assembled reply and produces the terminal
// EvalResult for the turn. identified reports whether the customer was
// resolved; sig is the outstanding detector's verdict; executed carries
// the tool calls whose results the reply may cite.
func (g *Gate) Evaluate(ctx context.Context, t *turn.ConversationTurn, reply string, cat classify.Category, identified bool, sig Signal, executed []toolcall.ProposedCall) turn.EvalResult {
	// Tier 1: hard rules. Any match is terminal; the judge never runs.
	if res := g.fastFail(t.ID, reply); res != nil {
		return *res
	}
	return g.judge(ctx, t, reply, cat, identified, sig, executed)
}

func (g *Gate) fastFail(turnID, reply string) *turn.EvalResult {
	lower := strings.ToLower(reply)
	for _, u := range unsafeReplies {
		if !u.pattern.MatchString(lower) {
			continue
		}
		slog.Warn("reply tripped hard rule", "turn_id", turnID, "violation", u.violation)
		return &turn.EvalResult{
			TurnID:      turnID,
			Disposition: u.disposition,
			Confidence:  turn.ConfidenceHigh,
			Tier:        turn.TierFastFail,
			Reasons:     []string{"hard rule violation: " + u.violation},
			Checks: []turn.Check{{
				Name:   "safety",
				Passed: false,
				Score:  0,
				Detail: "reply matched " + u.violation + " pattern",
			}},
		}
	}
	return nil
}

func (g *Gate) judge(ctx context.Context, t *turn.ConversationTurn, reply string, cat classify.Category, identified bool, sig Signal, executed []toolcall.ProposedCall) turn.EvalResult {
	out, err := g.judgeOnce(ctx, t.Text, reply, cat, sig, executed)
	if err != nil {
		// The absence of a judge decision is never approval.
		slog.Warn("judge unavailable, holding as draft", "turn_id", t.ID, "error", err)
		return turn.EvalResult{
			TurnID:      t.ID,
			Disposition: turn.DispositionDraft,
			Confidence:  turn.ConfidenceLow,
			Tier:        turn.TierJudge,
			Reasons:     []string{"judge unavailable"},
		}
	}

	res := turn.EvalResult{
		TurnID:     t.ID,
		Confidence: turn.Confidence(out.Confidence),
		Tier:       turn.TierJudge,
		Checks:     out.Checks,
	}
	if res.Confidence == "" {
		res.Confidence = turn.ConfidenceMedium
	}

	var reasons []string
	switch out.Decision {
	case "escalate":
		reasons = append(reasons, "judge requested human handoff")
	case "send":
	default:
		reasons = append(reasons, "judge held the reply for review")
	}

	for _, check := range out.Checks {
		threshold := g.pipe.ScoreThreshold
		if check.Name == "safety" {
			threshold = g.pipe.SafetyThreshold
		}
		if check.Score < threshold || !check.Passed {
			reasons = append(reasons, fmt.Sprintf("%s below threshold (%.2f)", check.Name, check.Score))
		}
	}

	if sig.IsOutstanding {
		reasons = append(reasons, "outstanding signal: "+sig.Trigger)
	}
	if sig.Degraded || sig.Confidence == turn.ConfidenceLow {
		reasons = append(reasons, "risk screening confidence too low")
		if res.Confidence == turn.ConfidenceHigh {
			res.Confidence = turn.ConfidenceMedium
		}
	}
	// Unknown category always drafts, identified or not. Identity absence
	// alone does not block a send (a thank-you from an anonymous visitor
	// can still go out).
	if cat == classify.CategoryUnknown {
		reasons = append(reasons, "unclassified")
		if !identified {
			reasons = append(reasons, "customer not identified")
		}
	}
	if res.Confidence != turn.ConfidenceHigh {
		reasons = append(reasons, "confidence not high")
	}

	switch {
	case out.Decision == "escalate":
		res.Disposition = turn.DispositionEscalate
	case len(reasons) > 0:
		res.Disposition = turn.DispositionDraft
	default:
		res.Disposition = turn.DispositionSend
	}
	if res.Disposition != turn.DispositionSend {
		res.Reasons = reasons
	}
	return res
}

func (g *Gate) judgeOnce(ctx context.Context, message, reply string, cat classify.Category, sig Signal, executed []toolcall.ProposedCall) (*judgeOutput, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CATEGORY: %s\n", cat)
	if sig.IsOutstanding {
		sb.WriteString("OUTSTANDING CASE: be extra strict; when in doubt, hold as draft.\n")
	}
	if len(executed) > 0 {
		sb.WriteString("[Tool results available to the agent]\n")
		for _, call := range executed {
			fmt.Fprintf(&sb, "%s: %s\n", call.Tool, call.Result)
		}
		sb.WriteString("Data in the reply matching these results is accurate.\n")
	}
	fmt.Fprintf(&sb, "\nCUSTOMER MESSAGE:\n%s\n\nREPLY TO EVALUATE:\n%s", message, reply)

	res, err := g.llm.Infer(ctx, inference.PromptSpec{
		Model:        g.cfg.JudgeModel,
		Instructions: judgeInstructions,
		Input:        sb.String(),
		MaxTokens:    1024,
		Timeout:      g.cfg.JudgeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("judge inference: %w", err)
	}

	var out judgeOutput
	if err := json.Unmarshal(res.Output, &out); err != nil {
		return nil, fmt.Errorf("unmarshal judge output: %w", err)
	}
	return &out, nil
}
