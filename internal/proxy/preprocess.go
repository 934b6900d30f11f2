package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sipico/editor-gateway/internal/upstream"
)

const (
	preprocessPath  = "/internal/ai-image/preprocess"
	routePreprocess = "ai_preprocess"
)

type preprocessRequest struct {
	RawURL   string          `json:"rawUrl"`
	ImageURL string          `json:"imageUrl"`
	Hint     json.RawMessage `json:"hint,omitempty"`
}

type backendPreprocessRequest struct {
	ImageURL string          `json:"imageUrl"`
	Hint     json.RawMessage `json:"hint,omitempty"`
}

type backendPreprocessResponse struct {
	CleanURL json.RawMessage `json:"cleanUrl"`
	Skipped  json.RawMessage `json:"skipped"`
	Reason   json.RawMessage `json:"reason"`
	Debug    json.RawMessage `json:"debug"`
}

type preprocessResponse struct {
	CleanURL string          `json:"cleanUrl"`
	Skipped  json.RawMessage `json:"skipped"`
	Reason   json.RawMessage `json:"reason"`
	Debug    json.RawMessage `json:"debug"`
}

// HandlePreprocess asks the backend to clean up an image.
// POST /api/internal/ai-image/preprocess
// Body: {"rawUrl"|"imageUrl": "...", "hint": ...}
//
// Upload URLs are reduced to their path before forwarding, and the returned
// cleanUrl is expanded to a public URL.
func (h *Handler) HandlePreprocess(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var req preprocessRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody.Error())
		return
	}

	source := strings.TrimSpace(req.RawURL)
	if source == "" {
		source = strings.TrimSpace(req.ImageURL)
	}
	if source == "" {
		writeError(w, http.StatusBadRequest, "rawUrl or imageUrl is required")
		return
	}

	payload, err := json.Marshal(backendPreprocessRequest{
		ImageURL: h.urls.ToInternalPath(source),
		Hint:     req.Hint,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp, ok := h.forward(w, r, routePreprocess, &upstream.Request{
		Method: http.MethodPost,
		Path:   preprocessPath,
		Header: upstream.ComposeHeaders(r, h.ingestKey, true),
		Body:   bytes.NewReader(payload),
	})
	if !ok {
		return
	}

	var got backendPreprocessResponse
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, &got); err != nil {
			writeEnvelope(w, "backend returned invalid JSON", resp.StatusCode, truncate(resp.Body))
			return
		}
	}

	var cleanURL string
	if err := json.Unmarshal(got.CleanURL, &cleanURL); err != nil || strings.TrimSpace(cleanURL) == "" {
		h.logger.Error("backend preprocess response missing cleanUrl", "status", resp.StatusCode)
		writeError(w, http.StatusInternalServerError, "backend response missing cleanUrl")
		return
	}

	writeJSON(w, resp.StatusCode, preprocessResponse{
		CleanURL: h.urls.ToPublicURL(cleanURL),
		Skipped:  got.Skipped,
		Reason:   got.Reason,
		Debug:    got.Debug,
	})
}
