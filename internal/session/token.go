// Package session models the editor session cookie.
//
// The cookie value is the only authentication state the gateway has. The same
// value gates the admin pages and is forwarded to the backend as a bearer
// credential. A fixed literal grants access, so anyone who can set the cookie is
// an editor; this is a known limitation of the trust model and is kept as-is.
package session

import (
	"net/http"
	"time"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "editor_auth"

	// AuthenticatedValue is the cookie value that marks a logged-in editor.
	AuthenticatedValue = "1"

	// TTL is how long an issued session cookie lives.
	TTL = 8 * time.Hour
)

// Token is the session cookie value, or the empty token when no cookie was sent.
type Token struct {
	value   string
	present bool
}

// FromRequest reads the session token from the request cookies.
func FromRequest(r *http.Request) Token {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Token{}
	}
	return Token{value: c.Value, present: true}
}

// Present reports whether the request carried a session cookie at all.
func (t Token) Present() bool {
	return t.present
}

// IsAuthenticated reports whether the token grants access to protected pages.
func (t Token) IsAuthenticated() bool {
	return t.present && t.value == AuthenticatedValue
}

// BearerHeader returns the Authorization header value forwarded to the backend.
// It is empty when no usable cookie was sent.
func (t Token) BearerHeader() string {
	if !t.present || t.value == "" {
		return ""
	}
	return "Bearer " + t.value
}

// NewCookie builds the cookie issued on successful login.
func NewCookie(now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    AuthenticatedValue,
		Path:     "/",
		Expires:  now.Add(TTL),
		MaxAge:   int(TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearedCookie builds the cookie that invalidates a session immediately.
func ClearedCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // emitted as Max-Age=0
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
