// Package report turns ledger state into a presentation-neutral usage
// summary. Rendering (embeds, buttons, progress bars) happens elsewhere;
// this package owns only the data contract.
package report

import (
	"errors"
	"time"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
)

// ErrForbidden is returned when a guild plan is viewed by a caller
// without guild-management permission. Never downgraded to a partial
// report.
var ErrForbidden = errors.New("report: caller may not view this account")

// DefaultRecentWindow is how many recent expenses and credits a summary
// carries.
const DefaultRecentWindow = 10

// Viewer carries the caller-side facts a summary depends on.
type Viewer struct {
	ContactVerified bool
	ManagesGuild    bool
}

// PlanSummary is the plan-model half of a usage summary.
type PlanSummary struct {
	Total     float64
	Used      float64
	Expenses  []plan.Expense // most recent, insertion order
	Credits   []plan.Credit  // most recent, insertion order
	Exhausted bool
	// Percent is used/total as a percentage; nil when total is zero and
	// the ratio is undefined.
	Percent *float64
}

// SubscriptionSummary is the subscription-model half of a usage summary.
type SubscriptionSummary struct {
	Since   time.Time
	Expires time.Time
}

// Summary is the presentation-neutral usage report.
type Summary struct {
	Billing      entry.BillingType
	Location     entry.Kind
	Premium      bool
	Plan         *PlanSummary
	Subscription *SubscriptionSummary
	// ShowPurchase flags whether a "purchase credits" call to action
	// should be surfaced to this viewer.
	ShowPurchase bool
}

// Build produces a usage summary for the resolved entry.
//
// Guild-located billing requires the viewer to manage the guild;
// otherwise the result is ErrForbidden, not an empty report. The
// purchase call to action additionally requires a verified contact
// method. recent bounds the expense/credit slices; <= 0 uses
// DefaultRecentWindow.
// This is a PURE function.
func Build(resolved entry.Entry, c entry.Classification, v Viewer, recent int) (Summary, error) {
	if c.Location == entry.KindGuild && !v.ManagesGuild {
		return Summary{}, ErrForbidden
	}
	if recent <= 0 {
		recent = DefaultRecentWindow
	}

	s := Summary{
		Billing:  c.Type,
		Location: c.Location,
		Premium:  c.Premium,
	}

	s.ShowPurchase = v.ContactVerified
	if c.Location == entry.KindGuild {
		s.ShowPurchase = v.ContactVerified && v.ManagesGuild
	}

	switch c.Type {
	case entry.BillingSubscription:
		if resolved.Subscription != nil {
			s.Subscription = &SubscriptionSummary{
				Since:   resolved.Subscription.Since,
				Expires: resolved.Subscription.Expires,
			}
		}
	default:
		if resolved.Plan != nil {
			p := plan.Normalize(*resolved.Plan)
			ps := PlanSummary{
				Total:     p.Total,
				Used:      p.Used,
				Expenses:  plan.RecentExpenses(p, recent),
				Credits:   plan.RecentCredits(p, recent),
				Exhausted: p.IsExhausted(),
			}
			if pct, ok := plan.PercentUsed(p); ok {
				ps.Percent = &pct
			}
			s.Plan = &ps
		}
	}

	return s, nil
}
