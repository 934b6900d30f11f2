package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sipico/editor-gateway/internal/metrics"
	"github.com/sipico/editor-gateway/internal/session"
)

// Guard returns middleware that redirects unauthenticated requests under
// protectedPrefix to loginPath. Paths outside the prefix, and the exempt paths,
// always pass through untouched.
func Guard(protectedPrefix, loginPath string, logger *slog.Logger, exempt ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.TrimRight(protectedPrefix, "/")
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !underPrefix(path, prefix) || skip[path] {
				next.ServeHTTP(w, r)
				return
			}

			if session.FromRequest(r).IsAuthenticated() {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordAuthFailure("missing_session")
			logger.Debug("redirecting unauthenticated request", "path", path)
			http.Redirect(w, r, loginPath, http.StatusTemporaryRedirect)
		})
	}
}

func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
