package upstream

import (
	"net/http"

	"github.com/sipico/editor-gateway/internal/middleware"
	"github.com/sipico/editor-gateway/internal/session"
)

// IngestKeyHeader carries the internal service key on every backend call.
const IngestKeyHeader = "x-ingest-key"

// ComposeHeaders builds the outbound header set for a proxied call.
//
//   - Authorization: Bearer <session cookie>, when the cookie is present
//   - x-ingest-key: the internal service key, when configured
//   - Content-Type: copied from the inbound request, or application/json when jsonBody is set
//   - X-Request-ID: propagated from the inbound request context
//
// Missing inputs simply omit the corresponding header.
func ComposeHeaders(r *http.Request, ingestKey string, jsonBody bool) http.Header {
	h := make(http.Header)

	if bearer := session.FromRequest(r).BearerHeader(); bearer != "" {
		h.Set("Authorization", bearer)
	}
	if ingestKey != "" {
		h.Set(IngestKeyHeader, ingestKey)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	} else if jsonBody {
		h.Set("Content-Type", "application/json")
	}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		h.Set("X-Request-ID", id)
	}

	return h
}
