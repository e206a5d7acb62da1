// Package directory implements the identity/account lookup port. This
// build ships the development directory: a seeded in-memory record set
// shaped like the CRM responses, for local runs and tests.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clearfield/triage/internal/domain"
	"github.com/clearfield/triage/internal/domain/bundle"
)

// Directory implements directory.Lookup over an in-memory record set.
type Directory struct {
	mu      sync.RWMutex
	byEmail map[string]bundle.Identity
}

// New creates a directory seeded with development records.
func New() *Directory {
	d := &Directory{byEmail: make(map[string]bundle.Identity)}
	d.Seed(bundle.Identity{
		CustomerID:  "CUST-1001",
		Name:        "Sarah",
		Email:       "sarah@example.com",
		MemberSince: time.Date(2022, 3, 14, 0, 0, 0, 0, time.UTC),
		TotalOrders: 18,
		Lifetime:    1782.00,
	})
	return d
}

// Seed adds or replaces a record. Used by tests and local fixtures.
func (d *Directory) Seed(id bundle.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[strings.ToLower(id.Email)] = id
}

// FindByIdentifier resolves a customer by contact key. Unknown customers
// return domain.ErrNotFound, which callers treat as "not identified".
func (d *Directory) FindByIdentifier(_ context.Context, identifier string) (*bundle.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := id
	return &out, nil
}

// AccountFacts returns recent account-state items for the customer.
func (d *Directory) AccountFacts(_ context.Context, customerID string, limit int) ([]bundle.AccountFact, error) {
	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	facts := []bundle.AccountFact{
		{Kind: "subscription", Detail: "monthly box, active, next charge in 12 days"},
		{Kind: "transaction", Detail: fmt.Sprintf("last charge settled for customer %s", customerID)},
	}
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}
