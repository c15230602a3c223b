package middleware

import (
	"log/slog"
	"net/http"

	"github.com/vactrail/backend/internal/authz"
)

// RequireRole builds a middleware enforcing a minimum role on the caller
// already resolved by AuthMiddleware. It requires AuthMiddleware to have
// run first. Unlike the teacher's RBACMiddleware, the hierarchy weights
// live in authz.Role.AtLeast so this package and the AuthzKernel can never
// drift out of sync on who outranks whom.
func RequireRole(min authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := GetPrincipal(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !principal.Role.AtLeast(min) {
				slog.Warn("rbac: insufficient role", "have", principal.Role, "need", min, "user", principal.UserID)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
