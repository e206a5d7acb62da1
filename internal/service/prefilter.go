package service

import (
	"regexp"
	"strings"
)

// redLine is one high-risk pattern category. Order matters: the first
// match wins.
type redLine struct {
	pattern *regexp.Regexp
	trigger string
}

// redLines is the fixed, ordered red-line list. Matching is done against
// the lowercased message.
var redLines = []redLine{
	{regexp.MustCompile(`\b(kill|murder|die|death threat)\b`), "death_threat"},
	{regexp.MustCompile(`\b(sue|lawsuit|lawyer|legal action|court)\b`), "legal_threat"},
	{regexp.MustCompile(`\b(bank dispute|chargeback|dispute the charge)\b`), "bank_dispute"},
	{regexp.MustCompile(`\b(suicide|end my life|harm myself)\b`), "self_harm"},
	{regexp.MustCompile(`\b(bomb|weapon|attack)\b`), "violence_threat"},
}

// PreFilterMatch names the red-line category a message tripped.
type PreFilterMatch struct {
	Trigger string
}

// PreFilter is the synchronous safety check that runs before anything
// else in the pipeline. Pure, no network calls.
type PreFilter struct{}

// NewPreFilter creates the pre-filter.
func NewPreFilter() *PreFilter {
	return &PreFilter{}
}

// Check scans the raw message and returns the first red-line match in
// list order, or nil when the message is clean.
func (f *PreFilter) Check(text string) *PreFilterMatch {
	lower := strings.ToLower(text)
	for _, rl := range redLines {
		if rl.pattern.MatchString(lower) {
			return &PreFilterMatch{Trigger: rl.trigger}
		}
	}
	return nil
}
