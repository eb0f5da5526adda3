/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/auth/*      Registration and login (public)
  /api/costs       Ledger listing and ingestion (authenticated)
  /api/stats       Dashboard aggregation (authenticated)
  /api/budgets/*   Reads authenticated, mutations admin-only

AUTHORIZATION:
  RequireAuth verifies the bearer token before any core logic runs;
  RequireRole(ADMIN) additionally gates every budget mutation.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/finops-engine/identity"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		// Everything else requires a valid session
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			// Cost ledger
			r.Route("/costs", func(r chi.Router) {
				r.Get("/", h.ListCosts)
				r.Post("/", h.IngestCosts)
			})

			// Dashboard statistics
			r.Get("/stats", h.GetStats)

			// Budgets: reads for any authenticated identity,
			// mutations admin-only
			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", h.ListBudgets)

				r.Group(func(r chi.Router) {
					r.Use(h.RequireRole(identity.RoleAdmin))
					r.Post("/", h.CreateBudget)
					r.Post("/recalc", h.RecalcBudgets)
					r.Patch("/{id}", h.UpdateBudget)
					r.Delete("/{id}", h.DeleteBudget)
				})
			})
		})
	})

	return r
}
