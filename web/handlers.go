package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatforge/planledger/app"
	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
	"github.com/chatforge/planledger/domain/report"
	"github.com/chatforge/planledger/pkg/jsonapi"
	"github.com/chatforge/planledger/ports"
)

// parseRef extracts and validates the entry reference from the URL.
func parseRef(r *http.Request) (entry.Ref, bool) {
	kind := entry.Kind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	if !kind.IsValid() || id == "" {
		return entry.Ref{}, false
	}
	return entry.Ref{Kind: kind, ID: id}, true
}

// GetPlan returns the entry's plan snapshot.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		jsonapi.WriteBadRequest(w, "Invalid entry reference")
		return
	}

	p, err := h.ledger.GetPlan(r.Context(), ref)
	if err != nil {
		h.logger.Error().Err(err).Str("id", ref.ID).Msg("get plan failed")
		jsonapi.WriteInternalError(w, "")
		return
	}
	if p == nil {
		jsonapi.WriteNotFound(w, "plan")
		return
	}

	jsonapi.WriteResource(w, http.StatusOK, planResource(ref, *p))
}

// CreatePlanRequest is the plan provisioning payload.
type CreatePlanRequest struct {
	Seed float64 `json:"seed"`
}

// CreatePlan provisions a plan for the entry. Idempotent: an existing
// plan is returned unchanged.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		jsonapi.WriteBadRequest(w, "Invalid entry reference")
		return
	}

	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Seed < 0 {
		jsonapi.WriteValidationError(w, "seed", "Seed must be >= 0")
		return
	}

	p, err := h.ledger.CreatePlan(r.Context(), ref, req.Seed)
	if err != nil {
		h.logger.Error().Err(err).Str("id", ref.ID).Msg("create plan failed")
		jsonapi.WriteInternalError(w, "")
		return
	}

	jsonapi.WriteResource(w, http.StatusCreated, planResource(ref, p))
}

// ApplyCreditRequest is the charge-up payload.
type ApplyCreditRequest struct {
	Type    string  `json:"type"`
	Gateway string  `json:"gateway"`
	Amount  float64 `json:"amount"`
}

// ApplyCredit charges up the entry's plan.
func (h *Handler) ApplyCredit(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		jsonapi.WriteBadRequest(w, "Invalid entry reference")
		return
	}

	var req ApplyCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}

	creditType := plan.CreditType(req.Type)
	if creditType == "" {
		creditType = plan.CreditTypeGrant
	}
	if !creditType.IsValid() {
		jsonapi.WriteValidationError(w, "type", "Credit type must be web or grant")
		return
	}
	if req.Amount <= 0 {
		jsonapi.WriteValidationError(w, "amount", "Amount must be > 0")
		return
	}

	c, err := h.ledger.ApplyCredit(r.Context(), ref, creditType, req.Gateway, req.Amount)
	if errors.Is(err, app.ErrNotProvisioned) {
		jsonapi.WriteNotFound(w, "plan")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("id", ref.ID).Msg("apply credit failed")
		jsonapi.WriteInternalError(w, "")
		return
	}

	jsonapi.WriteResource(w, http.StatusCreated, creditResource(ref, c))
}

// ApplyExpenseRequest is the usage-debit payload. Category-specific
// fields mirror the expense classifiers.
type ApplyExpenseRequest struct {
	Category         string  `json:"category"`
	Model            string  `json:"model,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
	Kudos            float64 `json:"kudos,omitempty"`
	Count            int     `json:"count,omitempty"`
	DurationMs       int64   `json:"duration_ms,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	CompletionTokens int64   `json:"completion_tokens,omitempty"`
	URL              string  `json:"url,omitempty"`
}

// ApplyExpense debits the entry's plan. An entry without a plan is an
// expected no-op: the response carries applied=false instead of an error.
func (h *Handler) ApplyExpense(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok {
		jsonapi.WriteBadRequest(w, "Invalid entry reference")
		return
	}

	var req ApplyExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}

	rates := h.ledger.Rates()
	var charge plan.Charge
	switch plan.Category(req.Category) {
	case plan.CategoryConversational:
		charge = rates.Conversational(req.Model, req.Cost)
	case plan.CategoryCommunityImage:
		charge = rates.CommunityImage(req.Kudos)
	case plan.CategoryExternalImage:
		charge = rates.ExternalImage(req.Count)
	case plan.CategoryImageDescribe:
		charge = rates.ImageDescription(req.DurationMs)
	case plan.CategoryVideo:
		charge = rates.VideoGeneration(req.Model, req.DurationMs)
	case plan.CategorySummarization:
		charge = rates.Summarization(req.PromptTokens, req.CompletionTokens, req.URL)
	default:
		jsonapi.WriteValidationError(w, "category", "Unknown expense category")
		return
	}

	e, err := h.ledger.ApplyExpense(r.Context(), ref, charge)
	if err != nil {
		h.logger.Error().Err(err).Str("id", ref.ID).Msg("apply expense failed")
		jsonapi.WriteInternalError(w, "")
		return
	}
	if e == nil {
		jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{"applied": false})
		return
	}

	jsonapi.WriteResource(w, http.StatusCreated, expenseResource(ref, *e))
}

// GetUsage builds the usage report for a billing context. The acting
// user is the path entry; an optional guild scope comes from the query.
// The viewer's contact_verified and manages_guild facts are asserted by
// the authenticated admin caller, who is trusted to have resolved them
// against the chat platform before calling.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ref, ok := parseRef(r)
	if !ok || ref.Kind != entry.KindUser {
		jsonapi.WriteBadRequest(w, "Usage reports are requested for a user entry")
		return
	}

	bc := ports.BillingContext{User: ref}
	if guildID := r.URL.Query().Get("guild"); guildID != "" {
		bc.Guild = &entry.Ref{Kind: entry.KindGuild, ID: guildID}
	}

	viewer := report.Viewer{
		ContactVerified: r.URL.Query().Get("contact_verified") == "true",
		ManagesGuild:    r.URL.Query().Get("manages_guild") == "true",
	}

	summary, err := h.reports.Usage(r.Context(), bc, viewer)
	if errors.Is(err, report.ErrForbidden) {
		jsonapi.WriteForbidden(w, "Guild usage requires guild-management permission")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("id", ref.ID).Msg("usage report failed")
		jsonapi.WriteInternalError(w, "")
		return
	}

	jsonapi.WriteResource(w, http.StatusOK, usageResource(ref, summary))
}

// -----------------------------------------------------------------------------
// Resource mapping
// -----------------------------------------------------------------------------

func planResource(ref entry.Ref, p plan.Plan) jsonapi.Resource {
	return jsonapi.NewResource("plan", ref.ID, map[string]any{
		"kind":      string(ref.Kind),
		"total":     p.Total,
		"used":      p.Used,
		"remaining": p.Remaining(),
		"active":    p.IsActive(),
		"expenses":  len(p.Expenses),
		"credits":   len(p.History),
	})
}

func creditResource(ref entry.Ref, c plan.Credit) jsonapi.Resource {
	return jsonapi.NewResource("credit", ref.ID, map[string]any{
		"kind":    string(ref.Kind),
		"type":    string(c.Type),
		"gateway": c.Gateway,
		"amount":  c.Amount,
		"time":    c.Time,
	})
}

func expenseResource(ref entry.Ref, e plan.Expense) jsonapi.Resource {
	attrs := map[string]any{
		"kind":     string(ref.Kind),
		"category": string(e.Type),
		"used":     e.Used,
		"time":     e.Time,
	}
	if e.Data != nil {
		attrs["data"] = e.Data
	}
	return jsonapi.NewResource("expense", ref.ID, attrs)
}

func usageResource(ref entry.Ref, s report.Summary) jsonapi.Resource {
	attrs := map[string]any{
		"billing":       string(s.Billing),
		"location":      string(s.Location),
		"premium":       s.Premium,
		"show_purchase": s.ShowPurchase,
	}
	if s.Plan != nil {
		planAttrs := map[string]any{
			"total":     s.Plan.Total,
			"used":      s.Plan.Used,
			"exhausted": s.Plan.Exhausted,
			"expenses":  s.Plan.Expenses,
			"credits":   s.Plan.Credits,
		}
		if s.Plan.Percent != nil {
			planAttrs["percent"] = *s.Plan.Percent
		}
		attrs["plan"] = planAttrs
	}
	if s.Subscription != nil {
		attrs["subscription"] = map[string]any{
			"since":   s.Subscription.Since,
			"expires": s.Subscription.Expires,
		}
	}
	return jsonapi.NewResource("usage", ref.ID, attrs)
}
