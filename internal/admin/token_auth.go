package admin

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/magic-links/internal/metrics"
)

// AccessKeyHeader carries the admin API key.
const AccessKeyHeader = "AccessKey"

// TokenAuthMiddleware validates the AccessKey header against the configured bcrypt hash.
func (h *Handler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(AccessKeyHeader))
		if key == "" {
			metrics.RecordAdminAuthFailure("missing_key")
			WriteErrorWithHint(w, http.StatusUnauthorized, ErrCodeInvalidCredentials,
				"Missing API key", "Send the admin key in the AccessKey header")
			return
		}

		if len(h.keyHash) == 0 || bcrypt.CompareHashAndPassword(h.keyHash, []byte(key)) != nil {
			metrics.RecordAdminAuthFailure("invalid_key")
			h.logger.Warn("invalid admin key attempt", "remote_addr", r.RemoteAddr)
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
