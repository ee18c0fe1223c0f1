/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests, origins from config

ROUTE GROUPS:
  /api/brackets/*       Bracket catalog administration
  /api/match            Stateless bracket lookup
  /api/contracts/*      Contracts and their saved schedules
  /api/preview          Stateless schedule generation
  /api/sessions/*       Schedule sessions
  /api/scenarios/*      Demo scenarios
  /api/reset            Database reset (dev only)
  /                     Endpoint index

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Bracket routes
		r.Route("/brackets", func(r chi.Router) {
			r.Get("/", h.ListBrackets)
			r.Post("/", h.CreateBracket)
			r.Post("/import", h.ImportBrackets)
			r.Get("/export", h.ExportBrackets)
			r.Get("/coverage", h.BracketCoverage)
			r.Get("/years", h.ListBracketYears)
			r.Get("/{id}", h.GetBracket)
			r.Put("/{id}", h.UpdateBracket)
			r.Delete("/{id}", h.DeleteBracket)
		})
		r.Post("/match", h.MatchBracket)

		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.Post("/", h.CreateContract)
			r.Get("/{id}", h.GetContract)
			r.Delete("/{id}", h.DeleteContract)
			r.Get("/{id}/schedule", h.GetContractSchedule)
			r.Get("/{id}/bracket", h.GetContractBracket)
		})

		r.Post("/preview", h.Preview)

		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Patch("/params", h.UpdateParams)
				r.Put("/units", h.SetUnits)
				r.Post("/bracket/pin", h.PinBracket)
				r.Post("/bracket/auto", h.EnableAutoBracket)
				r.Post("/rows", h.AddRow)
				r.Patch("/rows/{index}", h.EditRow)
				r.Delete("/rows/{index}", h.RemoveRow)
				r.Post("/save", h.SaveSession)
			})
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
		r.Post("/reset", h.ResetDatabase)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Billing Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Billing Engine API</h1>
<ul>
<li><a href="/api/brackets">/api/brackets</a> - Bracket catalog</li>
<li><a href="/api/contracts">/api/contracts</a> - Contracts</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
