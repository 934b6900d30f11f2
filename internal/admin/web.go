package admin

import (
	"net/http"
	"strconv"

	"github.com/sipico/editor-gateway/internal/session"
)

// HandleDashboard reports the current editor session.
// GET /admin
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"authenticated": session.FromRequest(r).IsAuthenticated(),
	})
}

// HandleAudit lists recent audit events, newest first.
// GET /admin/audit?limit=50
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		WriteError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}

	events, err := h.storage.ListEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list audit events", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"items": events})
}
