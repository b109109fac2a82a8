package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatforge/planledger/adapters/sqlite"
	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
	"github.com/chatforge/planledger/ports"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) *sqlite.EntryStore {
	t.Helper()
	return sqlite.NewEntryStore(newTestDB(t))
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), entry.Ref{Kind: entry.KindUser, ID: "ghost"})
	if !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := plan.New(1.0)
	p = plan.ApplyExpense(p, plan.Expense{
		Type: plan.CategoryVideo,
		Time: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Used: 0.0046,
		Data: &plan.ExpenseData{Model: "luma", DurationMs: 2000},
	}, 0.05, 0)
	p = plan.ApplyCredit(p, plan.Credit{
		Type:    plan.CreditTypeWeb,
		Gateway: "stripe",
		Time:    time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC),
		Amount:  2.0,
	})

	sub := &entry.Subscription{
		Since:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Expires: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	e := entry.Entry{
		Ref:             entry.Ref{Kind: entry.KindUser, ID: "u1"},
		Plan:            &p,
		Subscription:    sub,
		ContactVerified: true,
	}
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, e.Ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Plan == nil {
		t.Fatal("plan missing after round trip")
	}
	if got.Plan.Total != 3.0 {
		t.Errorf("Total = %f, want 3.0", got.Plan.Total)
	}
	if len(got.Plan.Expenses) != 1 || len(got.Plan.History) != 1 {
		t.Fatalf("history lengths = %d/%d, want 1/1", len(got.Plan.Expenses), len(got.Plan.History))
	}
	exp := got.Plan.Expenses[0]
	if exp.Type != plan.CategoryVideo || exp.Data == nil || exp.Data.DurationMs != 2000 {
		t.Errorf("expense = %+v", exp)
	}
	if got.Plan.History[0].Gateway != "stripe" {
		t.Errorf("credit = %+v", got.Plan.History[0])
	}
	if got.Subscription == nil || !got.Subscription.Since.Equal(sub.Since) {
		t.Errorf("subscription = %+v", got.Subscription)
	}
	if !got.ContactVerified {
		t.Error("contact_verified lost")
	}
}

func TestGet_WrongShapePlanFieldsKeepBalance(t *testing.T) {
	tests := []struct {
		name     string
		planJSON string
	}{
		{"expenses not a list", `{"total":5,"used":1,"expenses":"bogus","history":[]}`},
		{"history not a list", `{"total":5,"used":1,"expenses":[],"history":42}`},
		{"both wrong shape", `{"total":5,"used":1,"expenses":{},"history":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			s := sqlite.NewEntryStore(db)
			ctx := context.Background()

			now := time.Now().UTC()
			_, err := db.DB.ExecContext(ctx, `
				INSERT INTO entries (kind, id, plan_json, created_at, updated_at)
				VALUES ('user', 'u1', ?, ?, ?)
			`, tt.planJSON, now, now)
			if err != nil {
				t.Fatalf("insert: %v", err)
			}

			got, err := s.Get(ctx, entry.Ref{Kind: entry.KindUser, ID: "u1"})
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Plan == nil {
				t.Fatal("balance dropped, entry reads as not provisioned")
			}
			if got.Plan.Total != 5 || got.Plan.Used != 1 {
				t.Errorf("Total/Used = %f/%f, want 5/1", got.Plan.Total, got.Plan.Used)
			}
			if got.Plan.Expenses == nil || len(got.Plan.Expenses) != 0 {
				t.Errorf("Expenses = %+v, want empty", got.Plan.Expenses)
			}
			if got.Plan.History == nil || len(got.Plan.History) != 0 {
				t.Errorf("History = %+v, want empty", got.Plan.History)
			}
		})
	}
}

func TestGet_UnreadablePlanColumnReadsAsNoPlan(t *testing.T) {
	db := newTestDB(t)
	s := sqlite.NewEntryStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := db.DB.ExecContext(ctx, `
		INSERT INTO entries (kind, id, plan_json, created_at, updated_at)
		VALUES ('user', 'u1', '{not json', ?, ?)
	`, now, now)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get(ctx, entry.Ref{Kind: entry.KindUser, ID: "u1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Plan != nil {
		t.Errorf("Plan = %+v, want nil for unparseable column", got.Plan)
	}
}

func TestPut_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := entry.Ref{Kind: entry.KindUser, ID: "u1"}
	if err := s.Put(ctx, entry.Entry{Ref: r}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, entry.Entry{Ref: r, ContactVerified: true}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, _ := s.Get(ctx, r)
	if !got.ContactVerified {
		t.Error("upsert should replace fields")
	}
}

func TestUpdatePlan_CreatesEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := entry.Ref{Kind: entry.KindGuild, ID: "g1"}
	e, err := s.UpdatePlan(ctx, r, plan.New(5.0))
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if e.Plan == nil || e.Plan.Total != 5.0 {
		t.Errorf("entry = %+v", e)
	}
}

func TestUpdatePlan_PreservesOtherColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := entry.Ref{Kind: entry.KindUser, ID: "u1"}
	if err := s.Put(ctx, entry.Entry{Ref: r, ContactVerified: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.UpdatePlan(ctx, r, plan.New(1.0))
	if err != nil {
		t.Fatalf("UpdatePlan: %v", err)
	}
	if !got.ContactVerified {
		t.Error("plan write must not clobber contact_verified")
	}
}

func TestUserAndGuildNamespacesAreDistinct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpdatePlan(ctx, entry.Ref{Kind: entry.KindUser, ID: "42"}, plan.New(1)); err != nil {
		t.Fatalf("UpdatePlan user: %v", err)
	}
	if _, err := s.UpdatePlan(ctx, entry.Ref{Kind: entry.KindGuild, ID: "42"}, plan.New(2)); err != nil {
		t.Fatalf("UpdatePlan guild: %v", err)
	}

	u, _ := s.Get(ctx, entry.Ref{Kind: entry.KindUser, ID: "42"})
	g, _ := s.Get(ctx, entry.Ref{Kind: entry.KindGuild, ID: "42"})
	if u.Plan.Total != 1 || g.Plan.Total != 2 {
		t.Errorf("totals = %f/%f, want 1/2", u.Plan.Total, g.Plan.Total)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := s.Put(ctx, entry.Entry{Ref: entry.Ref{Kind: entry.KindUser, ID: id}}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := s.List(ctx, entry.KindUser, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Errorf("entries = %+v", got)
	}

	page, _ := s.List(ctx, entry.KindUser, 1, 1)
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("page = %+v, want [b]", page)
	}
}

func TestList_BadRowSurfacesError(t *testing.T) {
	db := newTestDB(t)
	s := sqlite.NewEntryStore(db)
	ctx := context.Background()

	if err := s.Put(ctx, entry.Entry{Ref: entry.Ref{Kind: entry.KindUser, ID: "a"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	now := time.Now().UTC()
	_, err := db.DB.ExecContext(ctx, `
		INSERT INTO entries (kind, id, contact_verified, created_at, updated_at)
		VALUES ('user', 'b', 'x', ?, ?)
	`, now, now)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := s.List(ctx, entry.KindUser, 0, 0); err == nil {
		t.Fatal("List should surface the unreadable row, not drop it")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}
