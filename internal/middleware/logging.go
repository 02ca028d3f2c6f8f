package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sipico/magic-links/internal/logging"
)

// PathMasker rewrites a request path before it is logged.
type PathMasker func(path string) string

// HTTPLogging creates a middleware that logs HTTP requests and responses.
// Only active when logger level is DEBUG.
//
// allowlist names the JSON body fields logged in clear (nil = log everything).
// maskPath rewrites the logged path, e.g. to hide magic link tokens (nil = unchanged).
// Cookie headers are masked, bodies of non-JSON text responses are summarised.
func HTTPLogging(logger *slog.Logger, allowlist []string, maskPath PathMasker) func(http.Handler) http.Handler {
	if maskPath == nil {
		maskPath = func(path string) string { return path }
	}
	hl := &httpLogger{allowlist: allowlist, maskPath: maskPath}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			log := Logger(r.Context(), logger)
			path := hl.maskPath(r.URL.Path)
			if !hl.logRequest(log, r, path) {
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           new(bytes.Buffer),
			}

			start := time.Now()
			next.ServeHTTP(rec, r)

			hl.logResponse(log, r, path, rec, time.Since(start))
		})
	}
}

type httpLogger struct {
	allowlist []string
	maskPath  PathMasker
}

// logRequest logs the request and restores its body for the handler.
// It reports false when the body could not be read.
func (hl *httpLogger) logRequest(log *slog.Logger, r *http.Request, path string) bool {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			log.Error("failed to read request body", "error", err)
			return false
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	log.Debug("HTTP Request",
		"method", r.Method,
		"url", path,
		"query_params", r.URL.RawQuery,
		"headers", maskHeaders(r.Header),
		"body", hl.maskBody(body, r.Header.Get("Content-Type")),
	)
	return true
}

func (hl *httpLogger) logResponse(log *slog.Logger, r *http.Request, path string, rec *responseRecorder, d time.Duration) {
	attrs := []any{
		"method", r.Method,
		"url", path,
		"status_code", rec.statusCode,
		"headers", maskHeaders(rec.Header()),
		"body", hl.maskBody(rec.body.Bytes(), rec.Header().Get("Content-Type")),
		"duration_ms", d.Milliseconds(),
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		attrs = append(attrs, "location", loc)
	}
	log.Debug("HTTP Response", attrs...)
}

// maskHeaders masks sensitive header values
func maskHeaders(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			result[k] = logging.MaskHeader(k, strings.Join(v, "; "))
		}
	}
	return result
}

// maskBody masks JSON bodies with the allowlist. HTML bodies (redirect pages)
// are reduced to their size.
func (hl *httpLogger) maskBody(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return logging.FormatBinaryData(body)
	}
	if strings.HasPrefix(contentType, "text/html") {
		return fmt.Sprintf("[HTML: %d bytes]", len(body))
	}
	return string(logging.MaskJSONBody(body, hl.allowlist))
}

// responseRecorder captures response details for logging.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
