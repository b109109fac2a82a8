// Package entry provides the billing-account abstraction over user and
// guild accounts, and the pure resolution of which account a charge
// targets. This package has NO dependencies on I/O.
package entry

import (
	"time"

	"github.com/chatforge/planledger/domain/plan"
)

// Kind distinguishes the two account scopes.
type Kind string

const (
	KindUser  Kind = "user"
	KindGuild Kind = "guild"
)

// IsValid returns true if the kind is a known account scope.
func (k Kind) IsValid() bool {
	return k == KindUser || k == KindGuild
}

// Ref identifies an entry in the store.
type Ref struct {
	Kind Kind
	ID   string
}

// Subscription is the fixed-term billing window attached to
// subscription-model entries.
type Subscription struct {
	Since   time.Time `json:"since"`
	Expires time.Time `json:"expires"`
}

// IsActive returns true while the subscription window covers now.
func (s Subscription) IsActive(now time.Time) bool {
	return !now.Before(s.Since) && now.Before(s.Expires)
}

// Entry is a billing account: a user or a guild, each optionally owning
// at most one plan (immutable value type). User and guild entries are
// treated uniformly by the ledger; the Kind only matters for resolution
// and permission checks.
type Entry struct {
	Ref
	Plan            *plan.Plan
	Subscription    *Subscription
	ContactVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPlan returns true if the entry has a provisioned plan.
func (e Entry) HasPlan() bool {
	return e.Plan != nil
}

// WithPlan returns a copy of the entry with the plan set.
func (e Entry) WithPlan(p plan.Plan) Entry {
	e.Plan = &p
	return e
}

// BillingType distinguishes the two billing models.
type BillingType string

const (
	BillingPlan         BillingType = "plan"
	BillingSubscription BillingType = "subscription"
)

// Classification is the entitlement verdict computed by an external
// resolver for a billing context. The ledger trusts it verbatim.
type Classification struct {
	Premium  bool
	Type     BillingType
	Location Kind
}

// Resolve selects the single entry whose plan a charge or credit targets.
// Guild-located billing resolves to the guild entry; everything else
// resolves to the user. Classification only reports a guild location when
// a guild context exists, so a nil guild with a guild location is a
// caller bug; resolution still totals out to the user entry.
// This is a PURE function.
func Resolve(user Entry, guild *Entry, c Classification) Entry {
	if c.Location == KindGuild && guild != nil {
		return *guild
	}
	return user
}
