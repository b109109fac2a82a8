// Package plan provides pay-as-you-go ledger value types and pure
// accounting functions. This package has NO dependencies on I/O or
// external packages.
package plan

import "time"

// Category tags an expense with the usage that produced it.
type Category string

const (
	CategoryConversational Category = "conversational-generation"
	CategoryCommunityImage Category = "community-image-generation"
	CategoryExternalImage  Category = "external-image-generation"
	CategoryImageDescribe  Category = "image-description"
	CategoryVideo          Category = "video-generation"
	CategorySummarization  Category = "summarization"
)

// IsValid returns true if the category is a known usage category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryConversational, CategoryCommunityImage, CategoryExternalImage,
		CategoryImageDescribe, CategoryVideo, CategorySummarization:
		return true
	}
	return false
}

// CreditType distinguishes how a credit was charged up.
type CreditType string

const (
	CreditTypeWeb   CreditType = "web"   // purchased through the web checkout
	CreditTypeGrant CreditType = "grant" // granted by an operator
)

// IsValid returns true if the credit type is known.
func (t CreditType) IsValid() bool {
	return t == CreditTypeWeb || t == CreditTypeGrant
}

// DefaultMaxExpenseHistory is the number of expense line items retained
// on a plan. Oldest entries are dropped first. Credits are never truncated.
const DefaultMaxExpenseHistory = 500

// ExpenseData carries the category-specific payload of an expense.
// Only the fields relevant to the expense's Category are set; the rest
// stay at their zero value and are omitted from persisted JSON.
type ExpenseData struct {
	Model      string  `json:"model,omitempty"`    // conversational, video
	Kudos      float64 `json:"kudos,omitempty"`    // community image
	Count      int     `json:"count,omitempty"`    // external image
	DurationMs int64   `json:"duration,omitempty"` // image description, video
	Tokens     int64   `json:"tokens,omitempty"`   // summarization (prompt + completion)
	URL        string  `json:"url,omitempty"`      // summarization source
}

// Expense is a single debit line item against a plan (immutable value type).
type Expense struct {
	Type Category     `json:"type"`
	Time time.Time    `json:"time"`
	Used float64      `json:"used"`
	Data *ExpenseData `json:"data,omitempty"`
}

// Credit is a single charge-up line item against a plan (immutable value type).
type Credit struct {
	Type    CreditType `json:"type"`
	Gateway string     `json:"gateway,omitempty"`
	Time    time.Time  `json:"time"`
	Amount  float64    `json:"amount"`
}

// Plan is the pay-as-you-go balance owned by a single entry.
type Plan struct {
	Total    float64   `json:"total"`
	Used     float64   `json:"used"`
	Expenses []Expense `json:"expenses"`
	History  []Credit  `json:"history"`
}

// New creates an empty plan seeded with an initial credit total.
// This is a PURE function.
func New(seed float64) Plan {
	return Plan{
		Total:    seed,
		Used:     0,
		Expenses: []Expense{},
		History:  []Credit{},
	}
}

// Remaining returns the unspent balance. May be negative once exhausted.
// This is a PURE function.
func (p Plan) Remaining() float64 {
	return p.Total - p.Used
}

// IsActive returns true while the plan has balance left to spend.
// Exhaustion is a gating concern, not a write-time constraint: Used may
// legitimately exceed Total.
func (p Plan) IsActive() bool {
	return p.Total-p.Used > 0
}

// IsExhausted returns true once cumulative usage has reached the total.
func (p Plan) IsExhausted() bool {
	return !p.IsActive()
}

// ApplyExpense debits the plan and records the expense line item.
//
// The ledger debit is inflated by the bonus rate (adjusted = used * (1+bonus))
// but the recorded Expense keeps the pre-bonus Used value: the markup affects
// the running total only, never the line item. The running total is clamped
// to >= 0 after this single adjustment, not just at the end of a sequence.
//
// The expense history is bounded to maxHistory entries, oldest dropped first.
// A maxHistory <= 0 falls back to DefaultMaxExpenseHistory.
// This is a PURE function: the input plan is not mutated.
func ApplyExpense(p Plan, e Expense, bonus float64, maxHistory int) Plan {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxExpenseHistory
	}

	adjusted := e.Used + e.Used*bonus
	newUsed := p.Used + adjusted
	if newUsed < 0 {
		newUsed = 0
	}

	expenses := make([]Expense, 0, len(p.Expenses)+1)
	expenses = append(expenses, p.Expenses...)
	expenses = append(expenses, e)
	if len(expenses) > maxHistory {
		expenses = expenses[len(expenses)-maxHistory:]
	}

	p.Used = newUsed
	p.Expenses = expenses
	return p
}

// ApplyCredit charges up the plan and records the credit line item.
// Credit history is unbounded.
// This is a PURE function: the input plan is not mutated.
func ApplyCredit(p Plan, c Credit) Plan {
	history := make([]Credit, 0, len(p.History)+1)
	history = append(history, p.History...)
	history = append(history, c)

	p.Total += c.Amount
	p.History = history
	return p
}

// RecentExpenses returns the last n expenses in insertion order.
// This is a PURE function.
func RecentExpenses(p Plan, n int) []Expense {
	if n <= 0 || len(p.Expenses) == 0 {
		return nil
	}
	if len(p.Expenses) > n {
		return p.Expenses[len(p.Expenses)-n:]
	}
	return p.Expenses
}

// RecentCredits returns the last n credits in insertion order.
// This is a PURE function.
func RecentCredits(p Plan, n int) []Credit {
	if n <= 0 || len(p.History) == 0 {
		return nil
	}
	if len(p.History) > n {
		return p.History[len(p.History)-n:]
	}
	return p.History
}

// PercentUsed returns used/total as a percentage, or (0, false) when the
// total is zero and the ratio is undefined.
// This is a PURE function.
func PercentUsed(p Plan) (float64, bool) {
	if p.Total == 0 {
		return 0, false
	}
	return p.Used / p.Total * 100, true
}

// Normalize coerces a persisted plan into a well-formed snapshot.
// Missing totals default to zero and nil sequences default to empty.
// Defensive coercion lives here, at the read boundary, so the accounting
// functions can assume well-formed input.
// This is a PURE function.
func Normalize(p Plan) Plan {
	if p.Total != p.Total { // NaN guard for hand-edited records
		p.Total = 0
	}
	if p.Used != p.Used {
		p.Used = 0
	}
	if p.Expenses == nil {
		p.Expenses = []Expense{}
	}
	if p.History == nil {
		p.History = []Credit{}
	}
	return p
}
