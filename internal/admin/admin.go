// Package admin provides the editor session endpoints, the admin route guard and
// the small set of admin views served by the gateway itself.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sipico/editor-gateway/internal/middleware"
	"github.com/sipico/editor-gateway/internal/storage"
)

// Storage is the audit log used by admin handlers.
type Storage interface {
	Ping(ctx context.Context) error
	RecordEvent(ctx context.Context, e *storage.Event) (int64, error)
	ListEvents(ctx context.Context, limit int) ([]*storage.Event, error)
}

// Credentials holds the configured admin secret.
// When PasswordBcrypt is set it replaces the plain Password comparison.
type Credentials struct {
	Password       string
	PasswordBcrypt string
}

// Handler provides admin endpoints
type Handler struct {
	creds   Credentials
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates an admin handler. storage may be nil, in which case
// nothing is audited and /ready reports the database as not configured.
func NewHandler(creds Credentials, storage Storage, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		creds:   creds,
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// audit records an event, logging rather than failing when the store is unavailable.
func (h *Handler) audit(r *http.Request, e *storage.Event) {
	if h.storage == nil {
		return
	}
	e.RemoteAddr = r.RemoteAddr
	e.RequestID = middleware.GetRequestID(r.Context())
	if _, err := h.storage.RecordEvent(r.Context(), e); err != nil {
		h.logger.Warn("failed to record audit event", "kind", e.Kind, "error", err)
	}
}
