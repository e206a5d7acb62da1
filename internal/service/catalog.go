package service

import (
	"github.com/clearfield/triage/internal/config"
	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
)

// CategoryConfig drives per-category generation: model selection, the
// tool allow-list, the knowledge partition, and the instruction set.
// Built once at startup into an immutable table; lookup is a pure function.
type CategoryConfig struct {
	Model        string
	Tools        []toolcall.Tool
	Partition    string
	Instructions []string
}

// Allows reports whether t is in the category's tool allow-list.
func (c *CategoryConfig) Allows(t toolcall.Tool) bool {
	for _, allowed := range c.Tools {
		if allowed == t {
			return true
		}
	}
	return false
}

// ToolNames returns the allow-list as strings, for prompts and logs.
func (c *CategoryConfig) ToolNames() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = string(t)
	}
	return names
}

// universalRules are prepended to every category's instruction set when
// the catalog is built, so each request sees a fully composed rule set.
var universalRules = []string{
	"You are a customer support agent for a monthly subscription box company.",
	"NEVER confirm a subscription cancellation directly; direct the customer to the cancellation page instead.",
	"NEVER confirm a pause or suspension directly; a human must confirm the change first.",
	"NEVER state that a refund has been processed, issued, or approved; refunds require human approval.",
	"Never invent order, tracking, or payment data; only state data returned by a tool call.",
	"Be professional, empathetic, and warm. Address the customer's actual question and give actionable next steps.",
	"Respond with a JSON object: {\"body\": string, \"tool_calls\": [{\"tool\": string, \"args\": {string: string}}]}.",
	"Only propose tools from the list you are given for this category.",
}

// Catalog is the immutable category→config table.
type Catalog struct {
	configs map[classify.Category]CategoryConfig
	unknown CategoryConfig
}

// NewCatalog builds the category table. Model identities come from
// configuration; tool sets, partitions, and instructions are static.
func NewCatalog(inf config.Inference) *Catalog {
	build := func(model string, tools []toolcall.Tool, partition string, extra ...string) CategoryConfig {
		instructions := make([]string, 0, len(universalRules)+len(extra))
		instructions = append(instructions, universalRules...)
		instructions = append(instructions, extra...)
		return CategoryConfig{
			Model:        model,
			Tools:        tools,
			Partition:    partition,
			Instructions: instructions,
		}
	}

	configs := map[classify.Category]CategoryConfig{
		classify.CategoryShipping: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolTrackPackage},
			"shipping",
			"Help the customer locate their shipment. Offer tracking when a package is in transit."),
		classify.CategoryPayment: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolGetPaymentHistory},
			"payment",
			"Answer billing questions from payment history. Never promise refunds."),
		classify.CategoryFrequencyChange: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolChangeFrequency},
			"subscription",
			"Frequency changes take effect from the next billing cycle and require customer confirmation."),
		classify.CategorySkipOrPause: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolSkipMonth, toolcall.ToolPauseSubscription},
			"subscription",
			"Skips and pauses require confirmation. Explain what will happen before proposing the change."),
		classify.CategoryAddressChange: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolChangeAddress},
			"subscription",
			"Verify the new address with the customer before proposing the change."),
		classify.CategoryCustomization: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolGetBoxContents},
			"customization",
			"Show the customer their upcoming box contents when asked about customization."),
		classify.CategoryDamageReport: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolCreateDamageClaim, toolcall.ToolRequestPhotos},
			"damage",
			"Apologize for the damage. Open a claim and request photos when the customer reports a damaged or leaking item."),
		classify.CategoryGratitude: build(inf.GeneratorModel,
			nil,
			"gratitude",
			"Thank the customer warmly. No tools are needed."),
		classify.CategoryRetentionPrimary: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolGenerateCancelLink, toolcall.ToolGetCustomerHistory},
			"retention",
			"The customer is considering cancelling for the first time. Acknowledge their reasons, offer alternatives, and include the self-service cancellation link rather than confirming anything yourself."),
		classify.CategoryRetentionRepeat: build(inf.GeneratorModel,
			[]toolcall.Tool{toolcall.ToolGetSubscription, toolcall.ToolGenerateCancelLink},
			"retention",
			"The customer has asked to cancel before. Do not push alternatives again; provide the self-service cancellation link respectfully."),
	}

	return &Catalog{
		configs: configs,
		unknown: build(inf.GeneratorModel, nil, "general",
			"The request could not be categorized. Answer cautiously and avoid committing to any account change."),
	}
}

// ConfigFor returns the configuration for a category. The reserved
// unknown category (and anything outside the table) maps to the
// cautious general configuration with no tools.
func (c *Catalog) ConfigFor(cat classify.Category) CategoryConfig {
	if cfg, ok := c.configs[cat]; ok {
		return cfg
	}
	return c.unknown
}
