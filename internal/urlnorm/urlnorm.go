// Package urlnorm rewrites upload URLs between the absolute form seen by browsers
// and the relative form accepted by the backend.
//
// The backend rejects absolute loopback URLs as a server-side request forgery guard,
// so anything that points at local upload storage is reduced to its path before it
// is forwarded, and expanded again before it is returned to the client.
//
// Parse failures never surface as errors: every function falls back to returning
// its input unchanged.
package urlnorm

import (
	"net/url"
	"strings"
)

// DefaultUploadsPrefix is the path prefix under which uploaded media is served.
const DefaultUploadsPrefix = "/uploads/"

// TryParseURL parses s as an absolute http(s) URL.
// The second result is false when s is not one.
func TryParseURL(s string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}
	return u, true
}

// Builder converts between internal upload paths and public URLs.
type Builder struct {
	publicBase    string
	uploadsPrefix string
}

// NewBuilder creates a Builder that resolves upload paths against publicBase.
// An empty uploadsPrefix selects DefaultUploadsPrefix.
func NewBuilder(publicBase, uploadsPrefix string) *Builder {
	if uploadsPrefix == "" {
		uploadsPrefix = DefaultUploadsPrefix
	}
	if !strings.HasSuffix(uploadsPrefix, "/") {
		uploadsPrefix += "/"
	}
	return &Builder{
		publicBase:    strings.TrimRight(publicBase, "/"),
		uploadsPrefix: uploadsPrefix,
	}
}

// IsUploadPath reports whether s is a relative path under the uploads prefix.
func (b *Builder) IsUploadPath(s string) bool {
	return strings.HasPrefix(s, b.uploadsPrefix)
}

// ToInternalPath reduces an absolute upload URL to its path (plus query and fragment).
// Relative upload paths and anything that is not an upload URL are returned unchanged.
// Applying it twice yields the same result as applying it once.
func (b *Builder) ToInternalPath(s string) string {
	if b.IsUploadPath(s) {
		return s
	}
	u, ok := TryParseURL(s)
	if !ok || !b.IsUploadPath(u.EscapedPath()) {
		return s
	}
	out := u.EscapedPath()
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		out += "#" + u.EscapedFragment()
	}
	return out
}

// ToPublicURL expands an upload path, relative or absolute, into a fully-qualified URL
// on the public base. Other absolute http(s) URLs and anything unrecognised are
// returned unchanged.
func (b *Builder) ToPublicURL(s string) string {
	internal := b.ToInternalPath(s)
	if !b.IsUploadPath(internal) {
		return s
	}
	return b.publicBase + internal
}
