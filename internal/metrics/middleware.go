package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// numericSegment matches numeric path segments for requests that never matched a route.
var numericSegment = regexp.MustCompile(`/(\d+)`)

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter
func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called before writing body
func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Middleware records request count and latency for each request.
// A panicking handler is recorded as 500 and the panic is re-raised for the
// recovery middleware further out.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		defer func() {
			rec := recover()

			status := recorder.statusCode
			if rec != nil {
				status = http.StatusInternalServerError
			}
			path := routeLabel(r)
			code := strconv.Itoa(status)

			RecordRequest(r.Method, path, code)
			RecordRequestDuration(r.Method, path, code, time.Since(start).Seconds())

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// routeLabel prefers the matched chi route pattern so that catch-all routes and
// IDs do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath replaces numeric segments with ":id".
//
//	/api/internal/x-posts/123 -> /api/internal/x-posts/:id
func normalizePath(path string) string {
	return numericSegment.ReplaceAllString(path, "/:id")
}
