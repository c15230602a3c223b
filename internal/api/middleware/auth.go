package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vactrail/backend/internal/authz"
	"github.com/vactrail/backend/internal/identity"
	"github.com/vactrail/backend/internal/tokens"
)

// AuthMiddleware validates a bearer access token and resolves it into a
// full authz.Principal: role and (for managers) ManagedTeamIDs are always
// re-read from IdentityStore rather than trusted off the token's Role hint,
// so a demoted manager authorizes at User level on the very next request.
func AuthMiddleware(codec *tokens.Codec, store *identity.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
				return
			}

			claims, err := codec.Verify(parts[1], tokens.ScopeAccess)
			if err != nil {
				slog.Warn("auth: invalid access token", "error", err, "ip", r.RemoteAddr)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			user, err := store.GetUser(r.Context(), authz.CompanyScope(claims.CompanyID), claims.UserID)
			if err != nil {
				slog.Warn("auth: token subject not found", "user", claims.UserID, "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			if !user.IsActive {
				http.Error(w, "Account disabled", http.StatusForbidden)
				return
			}

			principal := authz.Principal{
				UserID:    user.ID,
				CompanyID: user.CompanyID,
				Role:      user.Role,
			}
			if principal.Role == authz.RoleManager {
				teamIDs, err := store.ManagedTeamIDs(r.Context(), user.ID)
				if err != nil {
					slog.Error("auth: loading managed teams", "user", user.ID, "error", err)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				principal.ManagedTeamIDs = teamIDs
			}

			SetSentryUser(principal.UserID.String(), string(principal.Role), r.RemoteAddr)
			SetSentryCompany(principal.CompanyID.String())

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
