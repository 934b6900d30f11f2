package proxy

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/editor-gateway/internal/upstream"
)

const (
	xInboxPath  = "/internal/x-inbox"
	routeXPosts = "x_posts"
)

var errInvalidPath = errors.New("invalid path")

// xPostsRest returns the sub-path below the x-posts mount. Each segment is
// checked in decoded form and must not be a dot segment or hide a slash.
func xPostsRest(r *http.Request) (string, error) {
	rest := strings.Trim(chi.URLParam(r, "*"), "/")
	if rest == "" {
		return "", nil
	}
	for _, seg := range strings.Split(rest, "/") {
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return "", errInvalidPath
		}
		if dec == "." || dec == ".." || strings.ContainsAny(dec, "/\\") {
			return "", errInvalidPath
		}
	}
	return rest, nil
}

// HandleXPosts passes a request through to the backend X-post inbox tree with the
// same method, sub-path and query. Bodies and content types are relayed verbatim.
// GET|POST|PATCH /api/internal/x-posts[/*]
func (h *Handler) HandleXPosts(w http.ResponseWriter, r *http.Request) {
	rest, err := xPostsRest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := xInboxPath
	if rest != "" {
		path += "/" + rest
	}

	req := &upstream.Request{
		Method:   r.Method,
		Path:     path,
		RawQuery: r.URL.RawQuery,
		Header:   upstream.ComposeHeaders(r, h.ingestKey, false),
	}
	if r.Method != http.MethodGet {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		req.Body = bytes.NewReader(body)
	}

	resp, ok := h.forward(w, r, routeXPosts, req)
	if !ok {
		return
	}
	relayRaw(w, resp)
}
