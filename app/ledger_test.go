package app_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatforge/planledger/adapters/clock"
	"github.com/chatforge/planledger/adapters/memory"
	"github.com/chatforge/planledger/adapters/metrics"
	"github.com/chatforge/planledger/app"
	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
)

func newLedger(t *testing.T) (*app.LedgerService, *memory.EntryStore, *clock.Fake) {
	t.Helper()
	store := memory.NewEntryStore()
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := app.NewLedgerService(store, clk, metrics.Noop{}, plan.DefaultRates(), zerolog.Nop())
	return svc, store, clk
}

func userRef(id string) entry.Ref {
	return entry.Ref{Kind: entry.KindUser, ID: id}
}

func TestCreatePlan(t *testing.T) {
	svc, _, _ := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	p, err := svc.CreatePlan(ctx, ref, 1.5)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if p.Total != 1.5 || p.Used != 0 {
		t.Errorf("plan = %+v", p)
	}

	got, err := svc.GetPlan(ctx, ref)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got == nil || got.Total != 1.5 {
		t.Errorf("persisted plan = %+v", got)
	}
}

func TestCreatePlan_Idempotent(t *testing.T) {
	svc, _, _ := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	if _, err := svc.CreatePlan(ctx, ref, 1.0); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if _, err := svc.ApplyCredit(ctx, ref, plan.CreditTypeGrant, "", 0.5); err != nil {
		t.Fatalf("ApplyCredit: %v", err)
	}

	// A second create with a different seed must not reset anything.
	p, err := svc.CreatePlan(ctx, ref, 99.0)
	if err != nil {
		t.Fatalf("second CreatePlan: %v", err)
	}
	if p.Total != 1.5 {
		t.Errorf("Total = %f, want untouched 1.5", p.Total)
	}
	if len(p.History) != 1 {
		t.Errorf("len(History) = %d, want 1", len(p.History))
	}
}

func TestGetPlan_MissingEntry(t *testing.T) {
	svc, _, _ := newLedger(t)

	p, err := svc.GetPlan(context.Background(), userRef("ghost"))
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if p != nil {
		t.Errorf("plan = %+v, want nil", p)
	}
}

func TestApplyExpense_StampsTimeAndDebitsWithBonus(t *testing.T) {
	svc, _, clk := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	if _, err := svc.CreatePlan(ctx, ref, 1.0); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	exp, err := svc.ChargeExternalImage(ctx, ref, 3)
	if err != nil {
		t.Fatalf("ChargeExternalImage: %v", err)
	}
	if exp == nil {
		t.Fatal("expense = nil, want recorded line item")
	}
	if !exp.Time.Equal(clk.Now()) {
		t.Errorf("Time = %s, want clock time %s", exp.Time, clk.Now())
	}
	if math.Abs(exp.Used-0.06) > 1e-9 {
		t.Errorf("recorded Used = %f, want pre-bonus 0.06", exp.Used)
	}

	p, err := svc.GetPlan(ctx, ref)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if math.Abs(p.Used-0.066) > 1e-9 {
		t.Errorf("ledger Used = %f, want 0.066", p.Used)
	}
}

func TestApplyExpense_UnprovisionedIsSoft(t *testing.T) {
	svc, store, _ := newLedger(t)
	ctx := context.Background()

	// Entry missing entirely.
	exp, err := svc.ChargeCommunityImage(ctx, userRef("ghost"), 90)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if exp != nil {
		t.Errorf("expense = %+v, want nil", exp)
	}

	// Entry present but without a plan.
	if err := store.Put(ctx, entry.Entry{Ref: userRef("u2")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	exp, err = svc.ChargeCommunityImage(ctx, userRef("u2"), 90)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if exp != nil {
		t.Errorf("expense = %+v, want nil", exp)
	}
}

func TestApplyCredit_UnprovisionedIsHard(t *testing.T) {
	svc, _, _ := newLedger(t)

	_, err := svc.ApplyCredit(context.Background(), userRef("ghost"), plan.CreditTypeWeb, "stripe", 1.0)
	if !errors.Is(err, app.ErrNotProvisioned) {
		t.Fatalf("err = %v, want ErrNotProvisioned", err)
	}
}

func TestApplyCredit(t *testing.T) {
	svc, _, clk := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	if _, err := svc.CreatePlan(ctx, ref, 0.5); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	c, err := svc.ApplyCredit(ctx, ref, plan.CreditTypeWeb, "stripe", 2.0)
	if err != nil {
		t.Fatalf("ApplyCredit: %v", err)
	}
	if c.Amount != 2.0 || c.Gateway != "stripe" || !c.Time.Equal(clk.Now()) {
		t.Errorf("credit = %+v", c)
	}

	p, _ := svc.GetPlan(ctx, ref)
	if p.Total != 2.5 {
		t.Errorf("Total = %f, want 2.5", p.Total)
	}
	if len(p.History) != 1 {
		t.Errorf("len(History) = %d, want 1", len(p.History))
	}
}

func TestIsActive(t *testing.T) {
	svc, _, _ := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	active, err := svc.IsActive(ctx, ref)
	if err != nil || active {
		t.Errorf("IsActive before provisioning = %v, %v", active, err)
	}

	if _, err := svc.CreatePlan(ctx, ref, 0.01); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	active, _ = svc.IsActive(ctx, ref)
	if !active {
		t.Error("funded plan should be active")
	}

	if _, err := svc.ChargeConversational(ctx, ref, "gpt-4", 0.01); err != nil {
		t.Fatalf("charge: %v", err)
	}
	active, _ = svc.IsActive(ctx, ref)
	if active {
		t.Error("exactly spent plan should be inactive")
	}
}

func TestChargeVideoGeneration_FlatRate(t *testing.T) {
	svc, _, _ := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	if _, err := svc.CreatePlan(ctx, ref, 1.0); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	exp, err := svc.ChargeVideoGeneration(ctx, ref, "gen2", 60000)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if math.Abs(exp.Used-0.01) > 1e-9 {
		t.Errorf("Used = %f, want flat 0.01", exp.Used)
	}
}

func TestSetRates(t *testing.T) {
	svc, _, _ := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	if _, err := svc.CreatePlan(ctx, ref, 1.0); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	r := plan.DefaultRates()
	r.ExternalImageUnitCost = 0.05
	svc.SetRates(r)

	exp, err := svc.ChargeExternalImage(ctx, ref, 2)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if math.Abs(exp.Used-0.10) > 1e-9 {
		t.Errorf("Used = %f, want repriced 0.10", exp.Used)
	}
}

func TestConcurrentExpenses_NoLostUpdates(t *testing.T) {
	svc, _, _ := newLedger(t)
	ctx := context.Background()
	ref := userRef("u1")

	if _, err := svc.CreatePlan(ctx, ref, 100); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	const workers = 16
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := svc.ChargeConversational(ctx, ref, "gpt-4", 0.01); err != nil {
					t.Errorf("charge: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	p, err := svc.GetPlan(ctx, ref)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	want := float64(workers*perWorker) * 0.01
	if math.Abs(p.Used-want) > 1e-6 {
		t.Errorf("Used = %f, want %f (lost updates)", p.Used, want)
	}
	if len(p.Expenses) != workers*perWorker {
		t.Errorf("len(Expenses) = %d, want %d", len(p.Expenses), workers*perWorker)
	}
}

func TestExpenseHistoryCapRespectsRates(t *testing.T) {
	store := memory.NewEntryStore()
	clk := clock.NewFake(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	r := plan.DefaultRates()
	r.MaxExpenseHistory = 5
	svc := app.NewLedgerService(store, clk, metrics.Noop{}, r, zerolog.Nop())

	ctx := context.Background()
	ref := userRef("u1")
	if _, err := svc.CreatePlan(ctx, ref, 10); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	for i := 0; i < 8; i++ {
		if _, err := svc.ChargeConversational(ctx, ref, "gpt-4", 0.01); err != nil {
			t.Fatalf("charge: %v", err)
		}
	}

	p, _ := svc.GetPlan(ctx, ref)
	if len(p.Expenses) != 5 {
		t.Errorf("len(Expenses) = %d, want 5", len(p.Expenses))
	}
}
