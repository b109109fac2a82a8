// Package memory provides in-memory adapter implementations
// (for tests and single-process deployments).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
	"github.com/chatforge/planledger/ports"
)

// EntryStore is an in-memory implementation of ports.EntryStore.
type EntryStore struct {
	mu      sync.RWMutex
	entries map[entry.Ref]entry.Entry
}

// NewEntryStore creates a new in-memory entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		entries: make(map[entry.Ref]entry.Entry),
	}
}

// Get retrieves an entry by reference.
func (s *EntryStore) Get(ctx context.Context, ref entry.Ref) (entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[ref]
	if !ok {
		return entry.Entry{}, ports.ErrNotFound
	}
	return clone(e), nil
}

// Put upserts a whole entry.
func (s *EntryStore) Put(ctx context.Context, e entry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.Ref] = clone(e)
	return nil
}

// UpdatePlan replaces the entry's plan wholesale and returns the updated
// entry. The entry is created if it does not exist.
func (s *EntryStore) UpdatePlan(ctx context.Context, ref entry.Ref, p plan.Plan) (entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[ref]
	if !ok {
		e = entry.Entry{Ref: ref, CreatedAt: time.Now().UTC()}
	}
	e.Plan = &p
	e.UpdatedAt = time.Now().UTC()
	s.entries[ref] = clone(e)
	return clone(e), nil
}

// List returns all entries of a kind ordered by ID.
func (s *EntryStore) List(ctx context.Context, kind entry.Kind, limit, offset int) ([]entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []entry.Entry
	for _, e := range s.entries {
		if e.Kind == kind {
			result = append(result, clone(e))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if offset > len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// clone deep-copies an entry so callers cannot mutate stored state
// through shared plan slices.
func clone(e entry.Entry) entry.Entry {
	if e.Plan != nil {
		p := *e.Plan
		p.Expenses = append([]plan.Expense(nil), e.Plan.Expenses...)
		p.History = append([]plan.Credit(nil), e.Plan.History...)
		e.Plan = &p
	}
	if e.Subscription != nil {
		sub := *e.Subscription
		e.Subscription = &sub
	}
	return e
}

// Ensure interface compliance.
var _ ports.EntryStore = (*EntryStore)(nil)
