// Package inference defines the port for structured language-model calls.
package inference

import (
	"context"
	"encoding/json"
	"time"
)

// PromptSpec describes one structured inference request. Instructions are
// the system rules; Input is the user-visible payload. Every call carries
// an explicit timeout.
type PromptSpec struct {
	Model        string
	Instructions []string
	Input        string
	MaxTokens    int
	Timeout      time.Duration
}

// Result is the structured response plus the cost/latency metadata the
// inference contract requires.
type Result struct {
	Output  json.RawMessage // structured JSON produced by the model
	Model   string
	Latency time.Duration
	CostUSD float64
	Tokens  int
}

// Service is the port interface for the inference collaborator, consumed
// by the classifier, generator, judge tier, and outstanding detector.
type Service interface {
	Infer(ctx context.Context, spec PromptSpec) (*Result, error)
}
