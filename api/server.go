/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the payroll frontend

ROUTE GROUPS:
  /api/records/*    Record edit hook
  /api/sheets/*     Sheets, recalculation, breakdown, run history
  /api/recalc/*     Coordinator state
  /api/holidays/*   Holiday calendar
  /api/scenarios/*  Demo scenarios

SECURITY NOTE:
  No authentication middleware. Deploy behind the HR backend's gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/records/{employee}/{date}", func(r chi.Router) {
			r.Put("/", h.PutRecord)
			r.Delete("/", h.DeleteRecord)
		})

		r.Route("/sheets", func(r chi.Router) {
			r.Get("/", h.ListSheets)
			r.Route("/{employee}/{year}/{month}", func(r chi.Router) {
				r.Get("/", h.GetSheet)
				r.Post("/recalculate", h.Recalculate)
				r.Get("/breakdown", h.GetBreakdown)
				r.Get("/runs", h.ListRuns)
				r.Get("/status", h.GetKeyStatus)
			})
		})

		r.Route("/recalc", func(r chi.Router) {
			r.Get("/status", h.ListRecalcStatus)
			r.Post("/sweep", h.Sweep)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
