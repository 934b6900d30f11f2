package admin

import (
	"github.com/go-chi/chi/v5"
)

// LogoutPath is exempt from the guard so logout works in any cookie state.
const LogoutPath = "/admin/logout"

// Mount registers the session, admin and health routes on r.
// The guard is applied by the caller at the top of the middleware stack.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReady)

	r.Post("/api/admin-login", h.HandleLogin)
	r.Post(LogoutPath, h.HandleLogout)

	r.Get("/admin", h.HandleDashboard)
	r.Get("/admin/audit", h.HandleAudit)
}
