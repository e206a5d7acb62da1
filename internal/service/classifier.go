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
)

var classifierInstructions = []string{
	"You are a message classifier for a subscription box support desk.",
	"Classify the customer message into exactly one primary category.",
	"Extract the customer's contact identifier (email address) if one appears in the message.",
	"Set escalation_signal=true only when the customer explicitly demands a human.",
	"Respond with a JSON object: {\"primary\": string, \"secondary\": string, \"urgency\": \"low|medium|high|critical\", \"sentiment\": \"positive|neutral|negative|frustrated\", \"identifier\": string, \"escalation_signal\": bool}.",
}

// Classifier produces a structured classification for each turn through
// the inference port. Failures never escape: any error or unparsable
// output maps to the reserved unknown fallback after a single retry.
type Classifier struct {
	llm inference.Service
	cfg config.Inference
}

// NewClassifier creates a classifier backed by the inference service.
func NewClassifier(llm inference.Service, cfg config.Inference) *Classifier {
	return &Classifier{llm: llm, cfg: cfg}
}

// Classify returns the classification for text, or the fallback result
// when inference fails twice or returns output outside the closed set.
func (c *Classifier) Classify(ctx context.Context, text string, channel turn.Channel) classify.Result {
	result, err := c.classifyOnce(ctx, text, channel)
	if err != nil {
		slog.Warn("classification failed, retrying once", "error", err)
		result, err = c.classifyOnce(ctx, text, channel)
	}
	if err != nil {
		slog.Warn("classification failed twice, using fallback", "error", err)
		return classify.Fallback()
	}
	return result
}

func (c *Classifier) classifyOnce(ctx context.Context, text string, channel turn.Channel) (classify.Result, error) {
	categories := make([]string, 0, len(classify.Categories()))
	for _, cat := range classify.Categories() {
		categories = append(categories, string(cat))
	}
	instructions := append([]string{}, classifierInstructions...)
	instructions = append(instructions, "Valid categories: "+strings.Join(categories, ", "))

	res, err := c.llm.Infer(ctx, inference.PromptSpec{
		Model:        c.cfg.ClassifierModel,
		Instructions: instructions,
		Input:        fmt.Sprintf("CHANNEL: %s\n\nMESSAGE:\n%s", channel, text),
		MaxTokens:    512,
		Timeout:      c.cfg.ClassifyTimeout,
	})
	if err != nil {
		return classify.Result{}, fmt.Errorf("classify inference: %w", err)
	}

	var out classify.Result
	if err := json.Unmarshal(res.Output, &out); err != nil {
		return classify.Result{}, fmt.Errorf("unmarshal classification: %w", err)
	}
	if !out.Primary.Valid() || out.Primary == classify.CategoryUnknown {
		return classify.Result{}, fmt.Errorf("classifier returned invalid category %q", out.Primary)
	}
	if out.Secondary != "" && !out.Secondary.Valid() {
		out.Secondary = ""
	}
	if out.Urgency == "" {
		out.Urgency = classify.UrgencyMedium
	}
	if out.Sentiment == "" {
		out.Sentiment = classify.SentimentNeutral
	}
	return out, nil
}
