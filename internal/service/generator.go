package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain/bundle"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/port/inference"
	"github.com/clearfield/triage/internal/port/knowledge"
)

// generatorOutput is the structured shape the generation model returns.
type generatorOutput struct {
	Body      string `json:"body"`
	ToolCalls []struct {
		Tool string            `json:"tool"`
		Args map[string]string `json:"args"`
	} `json:"tool_calls"`
}

// Generator produces the draft reply body and the proposed tool calls
// for a turn, using the category's configured model, tool allow-list,
// and knowledge partition. The allow-list is a hard boundary: a call
// referencing a tool outside the category's set never reaches the
// governor.
type Generator struct {
	llm     inference.Service
	know    knowledge.Store
	catalog *Catalog
	infCfg  config.Inference
	knowCfg config.Knowledge
	now     func() time.Time
}

// NewGenerator creates a generator.
func NewGenerator(llm inference.Service, know knowledge.Store, catalog *Catalog, infCfg config.Inference, knowCfg config.Knowledge) *Generator {
	return &Generator{
		llm:     llm,
		know:    know,
		catalog: catalog,
		infCfg:  infCfg,
		knowCfg: knowCfg,
		now:     time.Now,
	}
}

// Generate runs one generation for the turn. A generation failure is
// returned to the caller, which escalates: with no reply there is
// nothing to grade.
func (g *Generator) Generate(ctx context.Context, t *turn.ConversationTurn, cat classify.Category, bnd *bundle.Bundle) (string, []toolcall.ProposedCall, error) {
	cfg := g.catalog.ConfigFor(cat)

	docs := g.searchKnowledge(ctx, cfg.Partition, t.Text)

	instructions := append([]string{}, cfg.Instructions...)
	if len(cfg.Tools) > 0 {
		instructions = append(instructions, "Tools available for this request: "+strings.Join(cfg.ToolNames(), ", "))
	} else {
		instructions = append(instructions, "No tools are available for this request; do not propose any.")
	}

	res, err := g.llm.Infer(ctx, inference.PromptSpec{
		Model:        cfg.Model,
		Instructions: instructions,
		Input:        g.buildInput(t.Text, bnd, docs),
		MaxTokens:    2048,
		Timeout:      g.infCfg.GenerateTimeout,
	})
	if err != nil {
		return "", nil, fmt.Errorf("generate inference: %w", err)
	}

	var out generatorOutput
	if err := json.Unmarshal(res.Output, &out); err != nil {
		return "", nil, fmt.Errorf("unmarshal generation: %w", err)
	}
	if strings.TrimSpace(out.Body) == "" {
		return "", nil, fmt.Errorf("generation produced empty body")
	}

	calls := g.screenCalls(t, cat, &cfg, out)
	return out.Body, calls, nil
}

// screenCalls applies the allow-list containment check and derives the
// governance mode for each surviving call.
func (g *Generator) screenCalls(t *turn.ConversationTurn, cat classify.Category, cfg *CategoryConfig, out generatorOutput) []toolcall.ProposedCall {
	var calls []toolcall.ProposedCall
	for _, raw := range out.ToolCalls {
		tool := toolcall.Tool(raw.Tool)
		mode, known := toolcall.ModeOf(tool)
		if !known {
			slog.Warn("generator proposed unknown tool, rejected",
				"tool", raw.Tool, "turn_id", t.ID)
			continue
		}
		if !cfg.Allows(tool) {
			slog.Warn("tool call outside category allow-list, rejected",
				"tool", raw.Tool, "category", cat, "turn_id", t.ID)
			continue
		}
		args := raw.Args
		if args == nil {
			args = map[string]string{}
		}
		now := g.now()
		calls = append(calls, toolcall.ProposedCall{
			ID:        uuid.NewString(),
			TurnID:    t.ID,
			SessionID: t.SessionID,
			Tool:      tool,
			Args:      args,
			Mode:      mode,
			State:     toolcall.StateProposed,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return calls
}

func (g *Generator) searchKnowledge(ctx context.Context, partition, query string) []knowledge.Document {
	if partition == "" {
		return nil
	}
	docs, err := g.know.Search(ctx, partition, query, g.knowCfg.TopK)
	if err != nil {
		slog.Warn("knowledge search failed, generating without documents",
			"partition", partition, "error", err)
		return nil
	}
	return docs
}

func (g *Generator) buildInput(text string, bnd *bundle.Bundle, docs []knowledge.Document) string {
	var sb strings.Builder
	sb.WriteString(bnd.Render())
	if len(docs) > 0 {
		sb.WriteString("[Knowledge]\n")
		for _, d := range docs {
			sb.WriteString(d.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("[End Knowledge]\n")
	}
	sb.WriteString("\nCUSTOMER MESSAGE:\n")
	sb.WriteString(text)
	return sb.String()
}
