// Package actions implements the action executor port against the
// subscription backoffice. This build ships the development executor:
// deterministic responses shaped like the production API, suitable for
// local runs and tests without backoffice credentials.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/clearfield/triage/internal/domain/toolcall"
)

// Executor produces deterministic backoffice responses keyed off the
// customer identifier, so repeated calls with the same args agree.
type Executor struct {
	now func() time.Time
}

// NewExecutor creates the development executor.
func NewExecutor() *Executor {
	return &Executor{now: time.Now}
}

// Execute runs one tool call. Unknown tools are an error; the governor's
// closed enum makes that unreachable in practice.
func (e *Executor) Execute(_ context.Context, tool toolcall.Tool, args map[string]string) (string, error) {
	email := args["customer_email"]
	subID := fmt.Sprintf("SUB-%04d", hashOf(email)%10000)

	switch tool {
	case toolcall.ToolGetSubscription:
		return marshal(map[string]any{
			"subscription_id": subID,
			"status":          "active",
			"frequency":       "monthly",
			"next_charge":     e.now().AddDate(0, 1, 0).Format("2006-01-02"),
		})
	case toolcall.ToolGetCustomerHistory:
		return marshal(map[string]any{
			"tickets": []map[string]string{
				{"date": e.now().AddDate(0, -1, 0).Format("2006-01-02"), "subject": "delivery inquiry"},
			},
		})
	case toolcall.ToolGetPaymentHistory:
		return marshal(map[string]any{
			"charges": []map[string]any{
				{"date": e.now().AddDate(0, -1, 0).Format("2006-01-02"), "amount": 99.00, "status": "settled"},
			},
		})
	case toolcall.ToolGenerateCancelLink:
		return marshal(map[string]any{
			"cancel_url": fmt.Sprintf("https://account.example.com/cancel?s=%s", subID),
			"expires_in": "72h",
		})
	case toolcall.ToolTrackPackage:
		return marshal(map[string]any{
			"tracking_number": fmt.Sprintf("TRK%08d", hashOf(email)%100000000),
			"status":          "in_transit",
			"eta":             e.now().AddDate(0, 0, 4).Format("2006-01-02"),
		})
	case toolcall.ToolGetBoxContents:
		return marshal(map[string]any{
			"items": []string{"olive oil", "date spread", "herbal tea"},
		})
	case toolcall.ToolChangeFrequency:
		return marshal(map[string]any{
			"subscription_id": subID,
			"new_frequency":   args["new_frequency"],
			"effective":       e.now().AddDate(0, 1, 0).Format("2006-01-02"),
		})
	case toolcall.ToolSkipMonth:
		return marshal(map[string]any{
			"subscription_id": subID,
			"skipped_month":   args["month"],
		})
	case toolcall.ToolPauseSubscription:
		return marshal(map[string]any{
			"subscription_id": subID,
			"paused_until":    e.now().AddDate(0, 1, 0).Format("2006-01-02"),
		})
	case toolcall.ToolChangeAddress:
		return marshal(map[string]any{
			"subscription_id": subID,
			"new_address":     args["new_address"],
		})
	case toolcall.ToolCreateDamageClaim:
		return marshal(map[string]any{
			"claim_id": fmt.Sprintf("CLM-%05d", hashOf(email+args["item_description"])%100000),
			"status":   "open",
		})
	case toolcall.ToolRequestPhotos:
		return marshal(map[string]any{
			"upload_url": fmt.Sprintf("https://claims.example.com/upload?s=%s", subID),
		})
	}
	return "", fmt.Errorf("unknown tool %q", tool)
}

func marshal(v map[string]any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data), nil
}

func hashOf(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
