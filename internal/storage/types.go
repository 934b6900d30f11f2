package storage

import "time"

// Audit event kinds.
const (
	KindLogin       = "login"
	KindLogout      = "logout"
	KindInboxAction = "inbox_action"
)

// Event is one audit log entry.
type Event struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject,omitempty"` // e.g. "news-inbox/42"
	Detail     string    `json:"detail,omitempty"`  // e.g. the inbox action
	Outcome    string    `json:"outcome"`           // e.g. "ok", "rejected", "backend_error"
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
