/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP:        Client address behind proxies
  3. RequestLogger: One zap line per request
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the dashboard
  6. Authenticate:  Bearer token → session in the request context

ROUTE GROUPS:
  /api/health           Liveness (public)
  /api/auth/*           Current session, logout
  /api/risk/*           Risk model and stateless scoring
  /api/employers/*      Employer onboarding, status, risk assessments
  /api/employees/*      Employee registration, advance balance
  /api/payroll/*        Payroll upload and history
  /api/advances/*       Advance requests and their lifecycle
  /api/reviews/*        Periodic risk review runs
  /api/scenarios/*      Demo data (admin)
  /api/sessions         Active sessions (admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Logging and auth middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/eaziwage/advance-engine/session"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))
	r.Use(h.Authenticate)

	admin := RequireRole(session.RoleAdmin)
	staff := RequireRole(session.RoleAdmin, session.RoleEmployer)
	anyone := RequireRole()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Use(anyone)
			r.Get("/session", h.CurrentSession)
			r.Post("/logout", h.Logout)
		})

		r.With(admin).Get("/sessions", h.ListSessions)

		// Risk routes
		r.Route("/risk", func(r chi.Router) {
			r.Use(anyone)
			r.Get("/model", h.GetRiskModel)
			r.With(admin).Post("/assess", h.ScoreFactors)
		})

		// Employer routes
		r.Route("/employers", func(r chi.Router) {
			r.With(admin).Get("/", h.ListEmployers)
			r.With(admin).Post("/", h.CreateEmployer)
			r.With(staff).Get("/{id}", h.GetEmployer)
			r.With(admin).Patch("/{id}/status", h.SetEmployerStatus)
			r.With(staff).Get("/{id}/risk", h.GetLatestAssessment)
			r.With(admin).Post("/{id}/risk", h.AssessEmployer)
		})

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Use(anyone)
			r.With(staff).Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.With(staff).Patch("/{id}/status", h.SetEmployeeStatus)
			r.Get("/{id}/risk", h.GetEmployeeAssessment)
			r.With(admin).Post("/{id}/risk", h.AssessEmployee)
		})

		// Payroll routes
		r.Route("/payroll", func(r chi.Router) {
			r.Use(staff)
			r.Post("/upload", h.UploadPayroll)
			r.Get("/history", h.PayrollHistory)
		})

		// Advance routes
		r.Route("/advances", func(r chi.Router) {
			r.Use(anyone)
			r.Get("/", h.ListAdvances)
			r.Post("/", h.CreateAdvance)
			r.Get("/quote", h.QuoteAdvance)
			r.Get("/{id}", h.GetAdvance)
			r.With(admin).Post("/{id}/approve", h.ApproveAdvance)
			r.With(admin).Post("/{id}/reject", h.RejectAdvance)
			r.With(admin).Post("/{id}/disburse", h.DisburseAdvance)
			r.With(admin).Post("/{id}/repay", h.RepayAdvance)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Use(admin)
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		// Review routes
		r.Route("/reviews", func(r chi.Router) {
			r.Use(admin)
			r.Get("/runs", h.ListReviewRuns)
			r.Post("/run", h.RunReview)
		})
	})

	return r
}
