// Package classify defines the domain model for message classification:
// the closed category set, urgency and sentiment scales, and the
// structured result produced by the classifier.
package classify

// Category is one of the fixed support categories a message routes to.
type Category string

const (
	CategoryShipping         Category = "shipping_or_delivery_question"
	CategoryPayment          Category = "payment_question"
	CategoryFrequencyChange  Category = "frequency_change_request"
	CategorySkipOrPause      Category = "skip_or_pause_request"
	CategoryAddressChange    Category = "recipient_or_address_change"
	CategoryCustomization    Category = "customization_request"
	CategoryDamageReport     Category = "damaged_or_leaking_item_report"
	CategoryGratitude        Category = "gratitude"
	CategoryRetentionPrimary Category = "retention_primary_request"
	CategoryRetentionRepeat  Category = "retention_repeated_request"

	// CategoryUnknown is the reserved fallback when classification fails
	// or returns something outside the closed set. It is never produced
	// by a healthy classifier run.
	CategoryUnknown Category = "unknown"
)

// Categories lists every routable category, excluding the reserved unknown.
func Categories() []Category {
	return []Category{
		CategoryShipping,
		CategoryPayment,
		CategoryFrequencyChange,
		CategorySkipOrPause,
		CategoryAddressChange,
		CategoryCustomization,
		CategoryDamageReport,
		CategoryGratitude,
		CategoryRetentionPrimary,
		CategoryRetentionRepeat,
	}
}

// Valid reports whether c is a routable category or the reserved unknown.
func (c Category) Valid() bool {
	if c == CategoryUnknown {
		return true
	}
	for _, v := range Categories() {
		if c == v {
			return true
		}
	}
	return false
}

// Urgency is an ordered scale; higher values are more urgent.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Sentiment is the ordered customer mood scale.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

// Result is the classifier output for one turn. Primary is always set;
// the orchestrator substitutes CategoryUnknown on any classifier failure
// rather than leaving it empty.
type Result struct {
	Primary          Category  `json:"primary"`
	Secondary        Category  `json:"secondary,omitempty"`
	Urgency          Urgency   `json:"urgency"`
	Sentiment        Sentiment `json:"sentiment"`
	Identifier       string    `json:"identifier,omitempty"` // extracted contact key, e.g. an email
	EscalationSignal bool      `json:"escalation_signal"`
}

// Fallback is the result substituted when classification fails.
// Never propagates the raw failure past the classifier boundary.
func Fallback() Result {
	return Result{
		Primary:   CategoryUnknown,
		Urgency:   UrgencyMedium,
		Sentiment: SentimentNeutral,
	}
}
