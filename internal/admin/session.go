package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/editor-gateway/internal/metrics"
	"github.com/sipico/editor-gateway/internal/session"
	"github.com/sipico/editor-gateway/internal/storage"
)

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// HandleLogin checks the submitted password and issues the session cookie.
// POST /api/admin-login
// Body: {"password": "..."}
//
// A body that cannot be decoded counts as an empty password, which never matches.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Password = ""
	}

	if !h.checkPassword(req.Password) {
		metrics.RecordAuthFailure("bad_password")
		h.logger.Warn("failed login attempt", "remote_addr", r.RemoteAddr)
		h.audit(r, &storage.Event{Kind: storage.KindLogin, Outcome: "rejected"})
		WriteJSON(w, http.StatusUnauthorized, loginResponse{OK: false, Message: "Invalid password"})
		return
	}

	http.SetCookie(w, session.NewCookie(h.now()))
	h.logger.Info("admin login successful", "remote_addr", r.RemoteAddr)
	h.audit(r, &storage.Event{Kind: storage.KindLogin, Outcome: "ok"})
	WriteJSON(w, http.StatusOK, loginResponse{OK: true})
}

// HandleLogout clears the session cookie regardless of its prior state.
// POST /admin/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, session.ClearedCookie())
	h.logger.Info("admin logout", "remote_addr", r.RemoteAddr)
	h.audit(r, &storage.Event{Kind: storage.KindLogout, Outcome: "ok"})
	WriteJSON(w, http.StatusOK, loginResponse{OK: true})
}

// checkPassword compares against the bcrypt hash when configured, otherwise
// against the plain secret in constant time. Empty input never matches.
func (h *Handler) checkPassword(password string) bool {
	if password == "" {
		return false
	}
	if h.creds.PasswordBcrypt != "" {
		return bcrypt.CompareHashAndPassword([]byte(h.creds.PasswordBcrypt), []byte(password)) == nil
	}
	if h.creds.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.creds.Password)) == 1
}
