package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/api/middleware"
	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/ratelimit"
)

// NewRouter assembles the full HTTP surface from spec.md §6 on top of s.
// Middleware order mirrors the teacher's router: request id and recovery
// outermost, then CORS and the coarse per-IP throttle, then request
// logging, and only then the auth/RBAC pair that needs a parsed token.
func NewRouter(s *Server, ipThrottle *ratelimit.IPThrottle) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.Cors(s.Config.CORSAllowedOrigins))
	r.Use(ipThrottle.Middleware)
	r.Use(middleware.RequestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.Login)
		r.Post("/refresh", s.Refresh)
		r.Post("/logout", s.Logout)
		r.Post("/invite/accept", s.AcceptInvite)
		r.Post("/password-reset/request", s.RequestPasswordReset)
		r.Post("/password-reset/confirm", s.ConfirmPasswordReset)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(s.Codec, s.Identity))
		r.Use(middleware.CSRFMiddleware)

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", s.Me)
			r.Post("/me/password", s.ChangePassword)
			r.Get("/", s.ListUsers)
			r.Get("/{id}", s.GetUser)
			r.Put("/{id}", s.UpdateUser)
			r.With(middleware.RequireRole(authz.RoleAdmin)).Delete("/{id}", s.DeleteUser)
		})

		r.Route("/invites", func(r chi.Router) {
			r.Use(middleware.RequireRole(authz.RoleAdmin))
			r.Post("/", s.CreateInvite)
			r.Get("/", s.ListInvites)
			r.Delete("/{id}", s.RevokeInvite)
		})

		r.Route("/companies", func(r chi.Router) {
			r.Get("/{id}", s.GetCompany)
		})

		r.Route("/functions", func(r chi.Router) {
			r.Get("/", s.ListFunctions)
			r.With(middleware.RequireRole(authz.RoleAdmin)).Post("/", s.CreateFunction)

			r.Route("/{functionID}/teams", func(r chi.Router) {
				r.Get("/", s.ListTeams)
				r.With(middleware.RequireRole(authz.RoleAdmin)).Post("/", s.CreateTeam)
			})
		})

		r.Route("/teams", func(r chi.Router) {
			r.Use(middleware.RequireRole(authz.RoleAdmin))
			r.Post("/{teamID}/members", s.AddTeamMembership)
			r.Delete("/{teamID}/members/{userID}", s.RemoveTeamMembership)
			r.Post("/{teamID}/manager", s.AssignManager)
			r.Delete("/{teamID}/manager/{managerUserID}", s.RemoveManagerAssignment)
		})

		r.Route("/vacations", func(r chi.Router) {
			r.Use(rateLimited(s.Gate, ratelimit.CategoryVacationRead))
			r.Get("/", s.ListRequests)
			r.Get("/balance", s.Balances)
			r.Get("/{id}", s.GetRequest)

			r.Group(func(r chi.Router) {
				r.Use(rateLimited(s.Gate, ratelimit.CategoryVacationWrite))
				r.Post("/", s.CreateRequest)
				r.Put("/{id}", s.ModifyRequest)
				r.Post("/{id}/submit", s.SubmitRequest)
				r.Post("/{id}/cancel", s.CancelRequest)
				r.Post("/{id}/withdraw", s.WithdrawRequest)
				r.With(middleware.RequireRole(authz.RoleManager)).Post("/{id}/approve", s.ApproveRequest)
				r.With(middleware.RequireRole(authz.RoleManager)).Post("/{id}/reject", s.RejectRequest)
			})
		})

		r.Route("/exports", func(r chi.Router) {
			r.Use(middleware.RequireRole(authz.RoleManager))
			r.Get("/vacations", s.ExportVacations)
		})

		r.Route("/audit-logs", func(r chi.Router) {
			r.Use(middleware.RequireRole(authz.RoleAdmin))
			r.Get("/", s.ListAuditEvents)
		})
	})

	return r
}

// rateLimited wraps Gate.CheckAndRecord as chi middleware, keyed by the
// authenticated caller's user id — AuthMiddleware has already run by the
// time these routes are reached, so a Principal is always present.
func rateLimited(gate *ratelimit.Gate, category ratelimit.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.MustGetPrincipal(r.Context())
			result, err := gate.CheckAndRecord(r.Context(), category, principal.UserID.String())
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !result.Allowed {
				writeError(w, r, apperr.RateLimited(result.RetryAfterSeconds))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
