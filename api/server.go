/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the attendance frontend

ROUTE GROUPS:
  /healthz              Liveness and store ping
  /api/attendance/*     Check-in, check-out, eligibility
  /api/leaves/*         Leave submission and decisions
  /api/balances/*       Ledger operations
  /api/employees/*      Per-employee balance summary

SECURITY NOTE:
  No authentication middleware. Callers are expected to sit behind a
  gateway that resolves the employee and approver identities.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configure cross-cutting middleware.
type RouterOptions struct {
	// AllowedOrigins for CORS. Empty means "*".
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/check-in", h.CheckIn)
			r.Post("/check-out", h.CheckOut)
			r.Get("/{employeeID}/eligibility", h.Eligibility)
			r.Get("/{employeeID}/today", h.Today)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.SubmitLeave)
			r.Get("/{id}", h.GetLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Post("/initialize", h.InitializeBalances)
			r.Post("/expire", h.ExpireDueCarryOvers)
			r.Get("/{id}", h.GetBalance)
			r.Post("/{id}/adjust", h.AdjustBalance)
			r.Post("/{id}/recalculate", h.RecalculateBalance)
			r.Post("/{id}/expire-carry-over", h.ExpireCarryOver)
			r.Get("/{id}/transactions", h.Transactions)
		})

		r.Get("/employees/{employeeID}/balances", h.Summary)
	})

	return r
}
