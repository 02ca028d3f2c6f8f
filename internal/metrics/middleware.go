package metrics

import (
	"net/http"
	"regexp"
	"time"
)

var numericSegment = regexp.MustCompile(`/\d+`)

// PathNormalizer maps a request path to a low-cardinality metric label.
// It returns false when it has no opinion on the path.
type PathNormalizer func(path string) (string, bool)

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.written {
		return
	}
	r.status = code
	r.written = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// NewMiddleware returns an HTTP middleware recording the request count and
// latency of every request, labelled by method, normalized path and status.
//
// normalize is consulted first, so magic-link paths can be labelled with their
// template pattern instead of the token. Paths it declines fall back to
// replacing numeric segments with ":id". A panicking handler is recovered and
// answered with 500 if nothing was written yet.
func NewMiddleware(normalize PathNormalizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			defer func() {
				if p := recover(); p != nil && !rec.written {
					rec.WriteHeader(http.StatusInternalServerError)
				}

				path, ok := "", false
				if normalize != nil {
					path, ok = normalize(r.URL.Path)
				}
				if !ok {
					path = normalizePath(r.URL.Path)
				}

				status := http.StatusText(rec.status)
				if status == "" {
					status = "UNKNOWN"
				}
				RecordRequest(r.Method, path, status)
				RecordRequestDuration(r.Method, path, status, time.Since(start).Seconds())
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// normalizePath replaces numeric path segments with ":id",
// e.g. /admin/api/principals/User/42 -> /admin/api/principals/User/:id.
func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
