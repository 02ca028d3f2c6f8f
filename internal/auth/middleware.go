package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sipico/magic-links/internal/middleware"
)

// RequireTarget returns middleware declaring the {resource, action} the route serves.
// It must run before Middleware.
func RequireTarget(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithTarget(r.Context(), Target{Resource: resource, Action: action})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Middleware returns Chi-compatible middleware running chain on each request.
// On success the principal and strategy name are attached to the context.
// Otherwise the request continues unauthenticated; handlers needing an identity
// are wrapped in RequirePrincipal.
func Middleware(chain *Chain, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out, name := chain.Authenticate(r)
			log := middleware.Logger(r.Context(), logger)
			if out.Result != ResultSuccess {
				if out.Result == ResultError {
					log.Warn("request left unauthenticated after strategy error", "strategy", name)
				}
				next.ServeHTTP(w, r)
				return
			}

			log.Debug("request authenticated",
				"strategy", name,
				"principal_type", out.Principal.Type,
				"principal_id", out.Principal.ID)

			ctx := WithPrincipal(r.Context(), out.Principal)
			ctx = WithStrategy(ctx, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePrincipal rejects unauthenticated requests with 401.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
