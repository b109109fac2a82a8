// Package classify provides Classifier implementations. The ledger
// treats the classification as externally supplied truth; Local derives
// it from stored entry state for self-contained deployments, mirroring
// how an external entitlement resolver would answer.
package classify

import (
	"context"
	"errors"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/ports"
)

// Local classifies billing contexts from the entry store: an active
// subscription wins over a plan, and a guild with a provisioned plan
// pulls billing to the guild scope. Guild location is only ever
// reported when the context carries a guild, which keeps the resolver's
// precondition intact.
type Local struct {
	store ports.EntryStore
	clock ports.Clock
}

// NewLocal creates a store-backed classifier.
func NewLocal(store ports.EntryStore, clock ports.Clock) *Local {
	return &Local{store: store, clock: clock}
}

// Classify computes the billing classification for a context.
func (l *Local) Classify(ctx context.Context, bc ports.BillingContext) (entry.Classification, error) {
	user, err := l.get(ctx, bc.User)
	if err != nil {
		return entry.Classification{}, err
	}

	c := entry.Classification{
		Type:     entry.BillingPlan,
		Location: entry.KindUser,
	}

	if user.Subscription != nil && user.Subscription.IsActive(l.clock.Now()) {
		c.Premium = true
		c.Type = entry.BillingSubscription
		return c, nil
	}

	if bc.Guild != nil {
		guild, err := l.get(ctx, *bc.Guild)
		if err != nil {
			return entry.Classification{}, err
		}
		if guild.HasPlan() {
			c.Premium = true
			c.Location = entry.KindGuild
			return c, nil
		}
	}

	c.Premium = user.HasPlan()
	return c, nil
}

// get loads an entry, treating a missing record as an empty account.
func (l *Local) get(ctx context.Context, ref entry.Ref) (entry.Entry, error) {
	e, err := l.store.Get(ctx, ref)
	if errors.Is(err, ports.ErrNotFound) {
		return entry.Entry{Ref: ref}, nil
	}
	if err != nil {
		return entry.Entry{}, err
	}
	return e, nil
}

// Ensure interface compliance.
var _ ports.Classifier = (*Local)(nil)
