// Package web provides the HTTP admin API for the plan ledger.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/chatforge/planledger/adapters/metrics"
	"github.com/chatforge/planledger/app"
	"github.com/chatforge/planledger/pkg/jsonapi"
	"github.com/chatforge/planledger/ports"
)

// Handler provides the admin API endpoints.
type Handler struct {
	ledger  *app.LedgerService
	reports *app.ReportService
	hasher  ports.Hasher
	ids     ports.IDGenerator
	// tokenHash is the bcrypt hash of the admin bearer token; empty
	// disables auth (development only).
	tokenHash      string
	collector      *metrics.Collector
	metricsEnabled bool
	logger         zerolog.Logger
	startTime      time.Time
}

// Deps contains dependencies for the web handler.
type Deps struct {
	Ledger         *app.LedgerService
	Reports        *app.ReportService
	Hasher         ports.Hasher
	IDs            ports.IDGenerator
	TokenHash      string
	Collector      *metrics.Collector
	MetricsEnabled bool
	Logger         zerolog.Logger
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		ledger:         deps.Ledger,
		reports:        deps.Reports,
		hasher:         deps.Hasher,
		ids:            deps.IDs,
		tokenHash:      deps.TokenHash,
		collector:      deps.Collector,
		metricsEnabled: deps.MetricsEnabled,
		logger:         deps.Logger,
		startTime:      time.Now(),
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	if h.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.requireToken)

		r.Route("/entries/{kind}/{id}", func(r chi.Router) {
			r.Get("/plan", h.GetPlan)
			r.Post("/plan", h.CreatePlan)
			r.Post("/credits", h.ApplyCredit)
			r.Post("/expenses", h.ApplyExpense)
			r.Get("/usage", h.GetUsage)
		})
	})

	return r
}

// Health returns service liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{
		"status": "ok",
		"uptime": time.Since(h.startTime).String(),
	})
}

// requireToken checks the Authorization bearer token against the
// configured bcrypt hash.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			jsonapi.WriteUnauthorized(w, "")
			return
		}

		if !h.hasher.Compare([]byte(h.tokenHash), auth[len(prefix):]) {
			jsonapi.WriteUnauthorized(w, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request and feeds the API metrics.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var reqID string
		if h.ids != nil {
			reqID = h.ids.New()
			ww.Header().Set("X-Request-Id", reqID)
		}

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		routePath := chi.RouteContext(r.Context()).RoutePattern()
		if routePath == "" {
			routePath = r.URL.Path
		}

		if h.collector != nil {
			h.collector.RequestsTotal.WithLabelValues(
				r.Method, routePath, strconv.Itoa(ww.Status()),
			).Inc()
			h.collector.RequestDuration.WithLabelValues(
				r.Method, routePath,
			).Observe(elapsed.Seconds())
		}

		h.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}
