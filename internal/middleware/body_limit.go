package middleware

import "net/http"

// DefaultMaxBodySize bounds admin API payloads (link and principal requests are tiny).
const DefaultMaxBodySize int64 = 64 << 10

// MaxBodySize returns middleware that limits request body size.
// A non-positive maxBytes selects DefaultMaxBodySize. Requests that declare a larger
// Content-Length are refused with 413 up front; others fail when the handler reads past the limit.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
