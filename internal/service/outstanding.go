package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/port/inference"
	"github.com/clearfield/triage/internal/port/knowledge"
)

// outstandingPartition holds previously confirmed exceptional cases.
const outstandingPartition = "outstanding-cases"

// Signal is the outstanding detector's verdict. It never changes the
// disposition on its own; the evaluation gate consumes it as one input.
type Signal struct {
	IsOutstanding bool            `json:"is_outstanding"`
	Trigger       string          `json:"trigger"`
	Confidence    turn.Confidence `json:"confidence"`
	Degraded      bool            `json:"-"` // detector itself failed
}

var detectorInstructions = []string{
	"You determine whether a customer request is an OUTSTANDING case: exceptional, difficult, or requiring special handling or human review.",
	"Consider the similar past cases provided; a close match to a confirmed case strongly suggests outstanding.",
	"Requests mentioning repeated failures, threats to leave after prior complaints, unusual amounts, or anything outside normal support flows are outstanding.",
	"If in doubt, mark the case outstanding with lowered confidence.",
	"Respond with a JSON object: {\"is_outstanding\": bool, \"trigger\": string, \"confidence\": \"high|medium|low\"}.",
}

// Detector is the independent, narrower risk classifier that runs
// concurrently with the generator.
type Detector struct {
	llm  inference.Service
	know knowledge.Store
	cfg  config.Inference
	topK int
}

// NewDetector creates an outstanding signal detector.
func NewDetector(llm inference.Service, know knowledge.Store, cfg config.Inference, knowCfg config.Knowledge) *Detector {
	return &Detector{llm: llm, know: know, cfg: cfg, topK: knowCfg.TopK}
}

// Detect classifies the message against the outstanding rule set plus
// similarity hits from confirmed cases. A detector failure degrades the
// signal (not outstanding, low confidence, Degraded set) instead of
// failing the turn.
func (d *Detector) Detect(ctx context.Context, text string, cat classify.Category) Signal {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("CATEGORY: %s\n", cat))

	docs, err := d.know.Search(ctx, outstandingPartition, text, d.topK)
	if err != nil {
		slog.Warn("outstanding case search failed, detecting without examples", "error", err)
	}
	if len(docs) > 0 {
		sb.WriteString("[Similar confirmed cases]\n")
		for _, doc := range docs {
			fmt.Fprintf(&sb, "- %s\n", doc.Content)
		}
	}
	sb.WriteString("\nCUSTOMER MESSAGE:\n")
	sb.WriteString(text)

	res, err := d.llm.Infer(ctx, inference.PromptSpec{
		Model:        d.cfg.DetectorModel,
		Instructions: detectorInstructions,
		Input:        sb.String(),
		MaxTokens:    256,
		Timeout:      d.cfg.DetectTimeout,
	})
	if err != nil {
		slog.Warn("outstanding detection failed, degrading confidence", "error", err)
		return Signal{Confidence: turn.ConfidenceLow, Degraded: true}
	}

	var sig Signal
	if err := json.Unmarshal(res.Output, &sig); err != nil {
		slog.Warn("outstanding output unparsable, degrading confidence", "error", err)
		return Signal{Confidence: turn.ConfidenceLow, Degraded: true}
	}
	if sig.Confidence == "" {
		sig.Confidence = turn.ConfidenceMedium
	}
	if !sig.IsOutstanding {
		sig.Trigger = ""
	}
	return sig
}
