package middleware

import (
	"log/slog"
	"net/http"
	"slices"
)

// Cors enforces a static origin allowlist loaded at startup from
// config.Config.CORSAllowedOrigins (validated up front, so every entry
// here is already a well-formed https:// or localhost origin). It
// replaces the teacher's DynamicCorsMiddleware, which looked up a
// per-tenant allowed_origins column on every request: this domain has no
// such table, so the allowlist is closed over once and never hits the
// database.
func Cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := slices.Contains(allowedOrigins, origin)

			if r.Method == http.MethodOptions {
				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.WriteHeader(http.StatusOK)
				return
			}

			if !allowed {
				slog.Warn("cors: origin rejected", "origin", origin)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			next.ServeHTTP(w, r)
		})
	}
}
