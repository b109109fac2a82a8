package entry_test

import (
	"testing"
	"time"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
)

func TestSubscriptionIsActive(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	sub := entry.Subscription{Since: since, Expires: expires}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", since.Add(-time.Hour), false},
		{"at start", since, true},
		{"mid term", since.Add(15 * 24 * time.Hour), true},
		{"at expiry", expires, false},
		{"after expiry", expires.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sub.IsActive(tt.now); got != tt.want {
				t.Errorf("IsActive(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	user := entry.Entry{Ref: entry.Ref{Kind: entry.KindUser, ID: "u1"}}
	guild := entry.Entry{Ref: entry.Ref{Kind: entry.KindGuild, ID: "g1"}}

	tests := []struct {
		name   string
		guild  *entry.Entry
		c      entry.Classification
		wantID string
	}{
		{
			name:   "user location",
			guild:  &guild,
			c:      entry.Classification{Location: entry.KindUser},
			wantID: "u1",
		},
		{
			name:   "guild location with guild present",
			guild:  &guild,
			c:      entry.Classification{Location: entry.KindGuild},
			wantID: "g1",
		},
		{
			name:   "guild location without guild falls back to user",
			guild:  nil,
			c:      entry.Classification{Location: entry.KindGuild},
			wantID: "u1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entry.Resolve(user, tt.guild, tt.c)
			if got.ID != tt.wantID {
				t.Errorf("resolved to %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestHasPlanAndWithPlan(t *testing.T) {
	e := entry.Entry{Ref: entry.Ref{Kind: entry.KindUser, ID: "u1"}}
	if e.HasPlan() {
		t.Error("fresh entry should have no plan")
	}

	e2 := e.WithPlan(plan.New(1.0))
	if !e2.HasPlan() {
		t.Error("WithPlan should attach a plan")
	}
	if e.HasPlan() {
		t.Error("WithPlan must not mutate the receiver")
	}
}

func TestKindIsValid(t *testing.T) {
	if !entry.KindUser.IsValid() || !entry.KindGuild.IsValid() {
		t.Error("user and guild kinds should be valid")
	}
	if entry.Kind("channel").IsValid() {
		t.Error("unknown kind should be invalid")
	}
}
