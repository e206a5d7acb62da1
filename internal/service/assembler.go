package service

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/clearfield/triage/internal/domain/classify"
	"github.com/clearfield/triage/internal/domain/toolcall"
)

// Openers by category group, selected deterministically per session.
var openers = map[string][]string{
	"shipping": {
		"I'd be happy to help you with your shipment!",
		"Let me look into your delivery for you.",
		"I understand how important it is to receive your package on time.",
	},
	"payment": {
		"I'd be happy to help with your payment question.",
		"Let me look into your billing details.",
		"I understand you have a question about your payment.",
	},
	"subscription": {
		"I'd be happy to help with your subscription.",
		"Let me assist you with that change.",
		"I can help you with your subscription request.",
	},
	"damage": {
		"I'm sorry to hear about the issue with your package.",
		"I apologize for the inconvenience. Let me help resolve this.",
		"I'm sorry that happened. Let me help make it right.",
	},
	"retention": {
		"I'm sorry to hear you're considering leaving us.",
		"I understand, and I appreciate you reaching out before making a decision.",
		"Thank you for letting us know. I'd love the opportunity to help.",
	},
	"gratitude": {
		"What a wonderful message, thank you so much!",
		"That truly means a lot to our team!",
		"Thank you for your kind words!",
	},
	"general": {
		"Thank you for reaching out to us.",
		"I'd be happy to help you with that.",
		"Thank you for contacting support.",
	},
}

var categoryToGroup = map[classify.Category]string{
	classify.CategoryShipping:         "shipping",
	classify.CategoryPayment:          "payment",
	classify.CategoryFrequencyChange:  "subscription",
	classify.CategorySkipOrPause:      "subscription",
	classify.CategoryAddressChange:    "subscription",
	classify.CategoryCustomization:    "subscription",
	classify.CategoryDamageReport:     "damage",
	classify.CategoryRetentionPrimary: "retention",
	classify.CategoryRetentionRepeat:  "retention",
	classify.CategoryGratitude:        "gratitude",
}

var closers = []string{
	"If you have any other questions, please don't hesitate to reach out.",
	"Please let me know if there's anything else I can help with.",
	"Feel free to contact us again if you need further assistance.",
	"Don't hesitate to reach out if you need anything else.",
	"I'm here if you need any further help.",
	"Please let me know if you have any other questions or concerns.",
	"We're always here to help, just reach out anytime.",
	"Is there anything else I can assist you with today?",
}

const signOff = "Warm regards,\nThe Support Team"

// pendingPhrase gives the reviewer-facing name of a confirm-required action.
var pendingPhrase = map[toolcall.Tool]string{
	toolcall.ToolChangeFrequency:   "frequency change",
	toolcall.ToolSkipMonth:         "skip request",
	toolcall.ToolPauseSubscription: "pause request",
	toolcall.ToolChangeAddress:     "address change",
	toolcall.ToolCreateDamageClaim: "damage claim",
	toolcall.ToolRequestPhotos:     "photo request",
}

// cancelLinkPlaceholders are the markers the generator uses for the
// self-service cancellation URL.
var cancelLinkPlaceholders = regexp.MustCompile(`\[CANCEL_LINK\]|\{cancel_link\}`)

var systemPhrases = []string{
	"connecting you with a support agent",
	"connect you with a human",
	"having trouble processing",
	"let me connect you",
}

// Assembler composes the final reply: greeting, opener, body with tool
// results substituted, pending-action notes, closer, and sign-off. Pure
// and deterministic; no inference call. Variety comes from a hash of the
// session id, so a session always reads consistently.
type Assembler struct{}

// NewAssembler creates the assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble builds the complete reply. customerName may be empty; the
// greeting falls back to a fixed generic salutation. System and
// escalation texts pass through unwrapped.
func (a *Assembler) Assemble(raw, customerName string, cat classify.Category, sessionID string, outcome GovernOutcome) string {
	if isSystemResponse(raw) {
		return raw
	}

	idx := hashSession(sessionID)

	greeting := "Hello,"
	if customerName != "" {
		greeting = fmt.Sprintf("Dear %s,", customerName)
	}

	group, ok := categoryToGroup[cat]
	if !ok {
		group = "general"
	}
	openerList := openers[group]
	opener := openerList[idx%uint32(len(openerList))]

	body := stripGreeting(raw, customerName)
	body = substituteResults(body, outcome.Executed)
	body = appendPendingNotes(body, outcome.Pending)

	closer := closers[idx%uint32(len(closers))]

	return strings.Join([]string{greeting, opener, body, closer, signOff}, "\n\n")
}

func hashSession(sessionID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return h.Sum32()
}

// substituteResults injects tool results the generator referenced by
// placeholder. Today that is the self-service cancellation link;
// displayed fetches are appended as their own section.
func substituteResults(body string, executed []toolcall.ProposedCall) string {
	for _, call := range executed {
		switch call.Tool {
		case toolcall.ToolGenerateCancelLink:
			var payload struct {
				CancelURL string `json:"cancel_url"`
			}
			if err := json.Unmarshal([]byte(call.Result), &payload); err == nil && payload.CancelURL != "" {
				if cancelLinkPlaceholders.MatchString(body) {
					body = cancelLinkPlaceholders.ReplaceAllString(body, payload.CancelURL)
				} else if !strings.Contains(body, payload.CancelURL) {
					body += "\n\nYou can manage your subscription here: " + payload.CancelURL
				}
			}
		case toolcall.ToolTrackPackage:
			var payload struct {
				TrackingNumber string `json:"tracking_number"`
				Status         string `json:"status"`
				ETA            string `json:"eta"`
			}
			if err := json.Unmarshal([]byte(call.Result), &payload); err == nil && payload.TrackingNumber != "" {
				if !strings.Contains(body, payload.TrackingNumber) {
					body += fmt.Sprintf("\n\nTracking %s: %s, estimated arrival %s.",
						payload.TrackingNumber, strings.ReplaceAll(payload.Status, "_", " "), payload.ETA)
				}
			}
		}
	}
	return body
}

// appendPendingNotes makes clear that confirm-required actions have not
// been taken yet.
func appendPendingNotes(body string, pending []toolcall.ProposedCall) string {
	for _, call := range pending {
		phrase, ok := pendingPhrase[call.Tool]
		if !ok {
			phrase = "request"
		}
		body += fmt.Sprintf("\n\nI've passed your %s to our team for confirmation. Nothing has been changed yet; you'll hear from us as soon as it's reviewed.", phrase)
	}
	return body
}

// stripGreeting removes a duplicate greeting the model may have added.
func stripGreeting(text, customerName string) string {
	if customerName != "" {
		named := regexp.MustCompile(`(?i)^(Dear|Hi|Hello|Hey)\s+` + regexp.QuoteMeta(customerName) + `[,!]?\s*\n?`)
		text = strings.TrimSpace(named.ReplaceAllString(text, ""))
	}
	generic := regexp.MustCompile(`(?i)^(Dear Customer|Dear Client|Hello|Hi there)[,!]?\s*\n?`)
	return strings.TrimSpace(generic.ReplaceAllString(text, ""))
}

func isSystemResponse(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range systemPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
