// Package app contains the services that wire domain logic to ports.
package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
	"github.com/chatforge/planledger/ports"
)

// ErrNotProvisioned is returned when an operation requires an existing
// plan and the entry has none. Expenses against an unprovisioned entry
// are a soft no-op instead; only credits fail hard.
var ErrNotProvisioned = errors.New("ledger: entry has no plan")

// lockShardCount bounds the per-entry lock table. Locks are sharded by
// entry reference to keep memory flat under many accounts.
const lockShardCount = 64

// LedgerService owns the read-modify-write cycle of the plan ledger.
// Writes against the same entry are serialized through a sharded lock
// table so concurrent expenses and credits cannot lose updates; the
// store write itself is atomic per call.
type LedgerService struct {
	store   ports.EntryStore
	clock   ports.Clock
	metrics ports.LedgerMetrics
	rates   plan.Rates
	logger  zerolog.Logger

	ratesMu sync.RWMutex
	locks   [lockShardCount]sync.Mutex
}

// NewLedgerService creates a new ledger service. A nil metrics sink
// disables instrumentation.
func NewLedgerService(
	store ports.EntryStore,
	clock ports.Clock,
	metrics ports.LedgerMetrics,
	rates plan.Rates,
	logger zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		store:   store,
		clock:   clock,
		metrics: metrics,
		rates:   rates,
		logger:  logger,
	}
}

// Rates returns the current pricing policy.
func (s *LedgerService) Rates() plan.Rates {
	s.ratesMu.RLock()
	defer s.ratesMu.RUnlock()
	return s.rates
}

// SetRates swaps the pricing policy. Used by config hot reload so
// repricing does not need a restart.
func (s *LedgerService) SetRates(r plan.Rates) {
	s.ratesMu.Lock()
	s.rates = r
	s.ratesMu.Unlock()
	s.logger.Info().Msg("ledger pricing reloaded")
}

// lockFor returns the lock shard serializing writes to a reference.
func (s *LedgerService) lockFor(ref entry.Ref) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ref.Kind))
	h.Write([]byte{0})
	h.Write([]byte(ref.ID))
	return &s.locks[h.Sum32()%lockShardCount]
}

// GetPlan returns a normalized snapshot of the entry's plan, or nil if
// the entry has no plan (or does not exist at all).
func (s *LedgerService) GetPlan(ctx context.Context, ref entry.Ref) (*plan.Plan, error) {
	e, err := s.store.Get(ctx, ref)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if e.Plan == nil {
		return nil, nil
	}

	p := plan.Normalize(*e.Plan)
	if p.IsExhausted() && s.metrics != nil {
		s.metrics.PlanExhausted(ref.Kind)
	}
	return &p, nil
}

// IsActive returns false if the entry has no plan, and otherwise whether
// the plan still has balance to spend.
func (s *LedgerService) IsActive(ctx context.Context, ref entry.Ref) (bool, error) {
	p, err := s.GetPlan(ctx, ref)
	if err != nil {
		return false, err
	}
	return p != nil && p.IsActive(), nil
}

// CreatePlan provisions a plan for the entry, seeded with the given
// total. Idempotent: an existing plan is returned unchanged regardless
// of the seed.
func (s *LedgerService) CreatePlan(ctx context.Context, ref entry.Ref, seed float64) (plan.Plan, error) {
	lock := s.lockFor(ref)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.store.Get(ctx, ref)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return plan.Plan{}, fmt.Errorf("get entry: %w", err)
	}
	if err == nil && e.Plan != nil {
		return plan.Normalize(*e.Plan), nil
	}

	p := plan.New(seed)
	if _, err := s.store.UpdatePlan(ctx, ref, p); err != nil {
		return plan.Plan{}, fmt.Errorf("persist plan: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PlanCreated(ref.Kind)
	}
	s.logger.Info().
		Str("kind", string(ref.Kind)).
		Str("id", ref.ID).
		Float64("seed", seed).
		Msg("plan created")

	return p, nil
}

// ApplyExpense debits the entry's plan with a classified charge and
// returns the recorded expense. Returns (nil, nil) when the entry has no
// plan: "not provisioned" is an expected outcome for expenses, the
// caller decides the UX.
func (s *LedgerService) ApplyExpense(ctx context.Context, ref entry.Ref, c plan.Charge) (*plan.Expense, error) {
	lock := s.lockFor(ref)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.store.Get(ctx, ref)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if e.Plan == nil {
		return nil, nil
	}

	recorded := c.Expense
	recorded.Time = s.clock.Now()

	current := plan.Normalize(*e.Plan)
	next := plan.ApplyExpense(current, recorded, c.Bonus, s.Rates().MaxExpenseHistory)

	if _, err := s.store.UpdatePlan(ctx, ref, next); err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ExpenseApplied(recorded.Type, next.Used-current.Used)
	}
	s.logger.Debug().
		Str("kind", string(ref.Kind)).
		Str("id", ref.ID).
		Str("category", string(recorded.Type)).
		Float64("used", recorded.Used).
		Float64("balance", next.Remaining()).
		Msg("expense applied")

	return &recorded, nil
}

// ApplyCredit charges up the entry's plan and returns the recorded
// credit. Unlike expenses, crediting an unprovisioned entry is a hard
// failure: ErrNotProvisioned.
func (s *LedgerService) ApplyCredit(ctx context.Context, ref entry.Ref, creditType plan.CreditType, gateway string, amount float64) (plan.Credit, error) {
	lock := s.lockFor(ref)
	lock.Lock()
	defer lock.Unlock()

	e, err := s.store.Get(ctx, ref)
	if errors.Is(err, ports.ErrNotFound) {
		return plan.Credit{}, ErrNotProvisioned
	}
	if err != nil {
		return plan.Credit{}, fmt.Errorf("get entry: %w", err)
	}
	if e.Plan == nil {
		return plan.Credit{}, ErrNotProvisioned
	}

	recorded := plan.Credit{
		Type:    creditType,
		Gateway: gateway,
		Time:    s.clock.Now(),
		Amount:  amount,
	}

	next := plan.ApplyCredit(plan.Normalize(*e.Plan), recorded)
	if _, err := s.store.UpdatePlan(ctx, ref, next); err != nil {
		return plan.Credit{}, fmt.Errorf("persist plan: %w", err)
	}

	if s.metrics != nil {
		s.metrics.CreditApplied(creditType, gateway, amount)
	}
	s.logger.Info().
		Str("kind", string(ref.Kind)).
		Str("id", ref.ID).
		Str("type", string(creditType)).
		Str("gateway", gateway).
		Float64("amount", amount).
		Float64("total", next.Total).
		Msg("credit applied")

	return recorded, nil
}

// -----------------------------------------------------------------------------
// Per-category charge operations
// -----------------------------------------------------------------------------
//
// Each classifies the usage with the current pricing policy and delegates
// to ApplyExpense. Expense recording happens only after a successful
// provider result, so the ledger never debits for work not delivered;
// that ordering is the caller's responsibility.

// ChargeConversational debits a conversational-generation expense with a
// caller-supplied cost.
func (s *LedgerService) ChargeConversational(ctx context.Context, ref entry.Ref, model string, cost float64) (*plan.Expense, error) {
	return s.ApplyExpense(ctx, ref, s.Rates().Conversational(model, cost))
}

// ChargeCommunityImage debits a community image generation priced by kudos.
func (s *LedgerService) ChargeCommunityImage(ctx context.Context, ref entry.Ref, kudos float64) (*plan.Expense, error) {
	return s.ApplyExpense(ctx, ref, s.Rates().CommunityImage(kudos))
}

// ChargeExternalImage debits an external-provider image generation priced
// per image.
func (s *LedgerService) ChargeExternalImage(ctx context.Context, ref entry.Ref, count int) (*plan.Expense, error) {
	return s.ApplyExpense(ctx, ref, s.Rates().ExternalImage(count))
}

// ChargeImageDescription debits an image-description job priced by
// processing duration.
func (s *LedgerService) ChargeImageDescription(ctx context.Context, ref entry.Ref, durationMs int64) (*plan.Expense, error) {
	return s.ApplyExpense(ctx, ref, s.Rates().ImageDescription(durationMs))
}

// ChargeVideoGeneration debits a video-generation job; flat-rate tier
// models are charged a fixed amount.
func (s *LedgerService) ChargeVideoGeneration(ctx context.Context, ref entry.Ref, model string, durationMs int64) (*plan.Expense, error) {
	return s.ApplyExpense(ctx, ref, s.Rates().VideoGeneration(model, durationMs))
}

// ChargeSummarization debits a content-summarization job priced by token
// throughput.
func (s *LedgerService) ChargeSummarization(ctx context.Context, ref entry.Ref, promptTokens, completionTokens int64, url string) (*plan.Expense, error) {
	return s.ApplyExpense(ctx, ref, s.Rates().Summarization(promptTokens, completionTokens, url))
}
