// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
)

// ErrNotFound is returned by stores when an entry does not exist.
var ErrNotFound = errors.New("entry not found")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides token hashing for the admin surface.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// EntryStore persists billing entries (user and guild accounts).
// UpdatePlan is the persistence primitive the ledger relies on: a
// wholesale replace of the plan field, atomic per call.
type EntryStore interface {
	// Get retrieves an entry by reference. Returns ErrNotFound when the
	// entry does not exist.
	Get(ctx context.Context, ref entry.Ref) (entry.Entry, error)

	// Put upserts a whole entry.
	Put(ctx context.Context, e entry.Entry) error

	// UpdatePlan replaces the entry's plan wholesale and returns the
	// updated entry. The entry is created if it does not exist.
	UpdatePlan(ctx context.Context, ref entry.Ref, p plan.Plan) (entry.Entry, error)

	// List returns all entries of a kind, for admin tooling.
	List(ctx context.Context, kind entry.Kind, limit, offset int) ([]entry.Entry, error)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// BillingContext describes the acting user and optional guild scope of
// a billing request.
type BillingContext struct {
	User  entry.Ref
	Guild *entry.Ref
}

// Classifier is the external entitlement resolver. The ledger trusts
// its classification verbatim; in particular it only reports a guild
// location when the context carries a guild.
type Classifier interface {
	Classify(ctx context.Context, bc BillingContext) (entry.Classification, error)
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// LedgerMetrics records ledger activity. A nil-safe no-op implementation
// is acceptable anywhere metrics are optional.
type LedgerMetrics interface {
	// ExpenseApplied records a debit with its category and adjusted amount.
	ExpenseApplied(category plan.Category, adjusted float64)

	// CreditApplied records a charge-up with its gateway tag.
	CreditApplied(creditType plan.CreditType, gateway string, amount float64)

	// PlanCreated records a plan provisioning.
	PlanCreated(kind entry.Kind)

	// PlanExhausted records an exhaustion observation on read.
	PlanExhausted(kind entry.Kind)
}
