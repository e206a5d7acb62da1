// Package directory defines the port for identity and account-state
// lookups against the customer system of record.
package directory

import (
	"context"

	"github.com/clearfield/triage/internal/domain/bundle"
)

// Lookup is the port interface for customer identity and account facts.
// FindByIdentifier returns domain.ErrNotFound when the customer is
// unknown; that is an expected outcome, not a failure.
type Lookup interface {
	FindByIdentifier(ctx context.Context, identifier string) (*bundle.Identity, error)
	AccountFacts(ctx context.Context, customerID string, limit int) ([]bundle.AccountFact, error)
}
