// Package metrics provides Prometheus metrics collection for the plan ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
	"github.com/chatforge/planledger/ports"
)

// Collector holds all Prometheus metrics for the ledger.
type Collector struct {
	// Ledger metrics
	ExpensesTotal *prometheus.CounterVec
	ExpenseAmount *prometheus.CounterVec
	CreditsTotal  *prometheus.CounterVec
	CreditAmount  *prometheus.CounterVec

	// Plan lifecycle metrics
	PlansCreated    *prometheus.CounterVec
	ExhaustionSeen  *prometheus.CounterVec

	// Admin API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a new metrics collector with all metrics registered on the
// default registry.
func New() *Collector {
	return &Collector{
		ExpensesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "expenses_total",
				Help:      "Total number of expenses applied",
			},
			[]string{"category"},
		),
		ExpenseAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "expense_amount_total",
				Help:      "Cumulative bonus-adjusted amount debited",
			},
			[]string{"category"},
		),
		CreditsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "credits_total",
				Help:      "Total number of credits applied",
			},
			[]string{"type", "gateway"},
		),
		CreditAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "credit_amount_total",
				Help:      "Cumulative amount credited",
			},
			[]string{"type", "gateway"},
		),
		PlansCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "plans_created_total",
				Help:      "Total number of plans provisioned",
			},
			[]string{"kind"},
		),
		ExhaustionSeen: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "plan_exhausted_total",
				Help:      "Exhausted plans observed at read time",
			},
			[]string{"kind"},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "planledger",
				Name:      "admin_requests_total",
				Help:      "Total number of admin API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "planledger",
				Name:      "admin_request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
	}
}

// ExpenseApplied records a debit with its category and adjusted amount.
func (c *Collector) ExpenseApplied(category plan.Category, adjusted float64) {
	c.ExpensesTotal.WithLabelValues(string(category)).Inc()
	if adjusted > 0 {
		c.ExpenseAmount.WithLabelValues(string(category)).Add(adjusted)
	}
}

// CreditApplied records a charge-up with its gateway tag.
func (c *Collector) CreditApplied(creditType plan.CreditType, gateway string, amount float64) {
	c.CreditsTotal.WithLabelValues(string(creditType), gateway).Inc()
	if amount > 0 {
		c.CreditAmount.WithLabelValues(string(creditType), gateway).Add(amount)
	}
}

// PlanCreated records a plan provisioning.
func (c *Collector) PlanCreated(kind entry.Kind) {
	c.PlansCreated.WithLabelValues(string(kind)).Inc()
}

// PlanExhausted records an exhaustion observation on read.
func (c *Collector) PlanExhausted(kind entry.Kind) {
	c.ExhaustionSeen.WithLabelValues(string(kind)).Inc()
}

// Ensure interface compliance.
var _ ports.LedgerMetrics = (*Collector)(nil)

// Noop discards all metrics (for tests and CLI paths).
type Noop struct{}

func (Noop) ExpenseApplied(plan.Category, float64)          {}
func (Noop) CreditApplied(plan.CreditType, string, float64) {}
func (Noop) PlanCreated(entry.Kind)                         {}
func (Noop) PlanExhausted(entry.Kind)                       {}

// Ensure interface compliance.
var _ ports.LedgerMetrics = Noop{}
