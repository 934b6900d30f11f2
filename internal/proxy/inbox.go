package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sipico/editor-gateway/internal/upstream"
)

// Inbox actions accepted on PATCH.
const (
	ActionQueue     = "queue"
	ActionDiscard   = "discard"
	ActionProcessed = "processed"
	ActionNewsBatch = "news-batch"
)

// Backend resource paths.
const (
	newsInboxPath     = "/internal/news-inbox"
	officialInboxPath = "/internal/official-social-inbox"
)

// Metric route labels.
const (
	routeNewsInbox     = "news_inbox"
	routeOfficialInbox = "official_inbox"
)

// pagingParams must be positive integers when present on inbox listings.
var pagingParams = []string{"page", "limit"}

var (
	errInvalidBody   = errors.New("invalid JSON body")
	errIDRequired    = errors.New("id is required")
	errInvalidID     = errors.New("id must be a positive integer")
	errEmptyItems    = errors.New("items must not be empty")
	errItemsNotArray = errors.New("items must be an array")
)

type actionRequest struct {
	Action  string          `json:"action"`
	ID      json.RawMessage `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// listQuery validates the paging parameters of an inbox listing and returns
// the original query string for forwarding.
func listQuery(r *http.Request) (string, error) {
	q := r.URL.Query()
	for _, key := range pagingParams {
		v := strings.TrimSpace(q.Get(key))
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			return "", fmt.Errorf("invalid %s parameter", key)
		}
	}
	return r.URL.RawQuery, nil
}

// parseID accepts a positive integer given as a JSON number or a numeric string.
func parseID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errIDRequired
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errInvalidID
		}
		s = strings.TrimSpace(s)
	}

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// HandleListNews lists news inbox items.
// GET /api/news-inbox?status&topic&q&page&limit
func (h *Handler) HandleListNews(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, routeNewsInbox, newsInboxPath)
}

// HandleListOfficial lists official social inbox items.
// GET /api/news-official-inbox?status&topic&q&page&limit
func (h *Handler) HandleListOfficial(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, routeOfficialInbox, officialInboxPath)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, route, path string) {
	query, err := listQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, ok := h.forward(w, r, route, &upstream.Request{
		Method:   http.MethodGet,
		Path:     path,
		RawQuery: query,
		Header:   upstream.ComposeHeaders(r, h.ingestKey, false),
	})
	if !ok {
		return
	}
	relayJSON(w, resp)
}

// HandleNewsAction applies an action to one news inbox item, or submits a batch.
// PATCH /api/news-inbox
// Body: {"action": "queue"|"discard"|"processed", "id": 42}
// Body: {"action": "news-batch", "payload": {...}}
func (h *Handler) HandleNewsAction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}

	if req.Action == ActionNewsBatch {
		if isEmptyJSON(req.Payload) {
			writeError(w, http.StatusBadRequest, "payload is required for news-batch")
			return
		}
		h.dispatchAction(w, r, routeNewsInbox, "news-inbox/batch", req.Action, &upstream.Request{
			Method: http.MethodPost,
			Path:   newsInboxPath + "/batch",
			Header: upstream.ComposeHeaders(r, h.ingestKey, true),
			Body:   bytes.NewReader(req.Payload),
		})
		return
	}

	h.itemAction(w, r, routeNewsInbox, newsInboxPath, "news-inbox", req)
}

// HandleOfficialAction applies an action to one official inbox item.
// PATCH /api/news-official-inbox
// Body: {"action": "queue"|"discard"|"processed", "id": 42}
func (h *Handler) HandleOfficialAction(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if req.Action == ActionNewsBatch {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}
	h.itemAction(w, r, routeOfficialInbox, officialInboxPath, "official-inbox", req)
}

func decodeAction(w http.ResponseWriter, r *http.Request) (*actionRequest, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}

	var req actionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody.Error())
		return nil, false
	}

	switch req.Action {
	case ActionQueue, ActionDiscard, ActionProcessed, ActionNewsBatch:
		return &req, true
	default:
		writeError(w, http.StatusBadRequest, "unsupported action")
		return nil, false
	}
}

func (h *Handler) itemAction(w http.ResponseWriter, r *http.Request, route, path, subject string, req *actionRequest) {
	id, err := parseID(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := json.Marshal(map[string]string{"action": req.Action})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	idStr := strconv.FormatInt(id, 10)
	h.dispatchAction(w, r, route, subject+"/"+idStr, req.Action, &upstream.Request{
		Method: http.MethodPatch,
		Path:   path + "/" + idStr,
		Header: upstream.ComposeHeaders(r, h.ingestKey, true),
		Body:   bytes.NewReader(payload),
	})
}

// dispatchAction forwards a validated action and audits its outcome.
func (h *Handler) dispatchAction(w http.ResponseWriter, r *http.Request, route, subject, action string, req *upstream.Request) {
	resp, ok := h.forward(w, r, route, req)
	if !ok {
		h.recordAction(r, subject, action, "backend_error")
		return
	}
	h.recordAction(r, subject, action, "ok")
	h.logger.Info("inbox action", "subject", subject, "action", action)
	relayJSON(w, resp)
}

// HandleSubmitOfficial submits items to the official social inbox.
// POST /api/news-official-inbox
// Body: {"items": [...]} or a bare array
func (h *Handler) HandleSubmitOfficial(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	items, err := parseItems(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := json.Marshal(map[string][]json.RawMessage{"items": items})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp, ok := h.forward(w, r, routeOfficialInbox, &upstream.Request{
		Method: http.MethodPost,
		Path:   officialInboxPath,
		Header: upstream.ComposeHeaders(r, h.ingestKey, true),
		Body:   bytes.NewReader(payload),
	})
	if !ok {
		return
	}
	relayJSON(w, resp)
}

// parseItems accepts {"items": [...]} or a bare array and rejects an empty list.
func parseItems(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errInvalidBody
	}

	raw := json.RawMessage(body)
	if body[0] != '[' {
		var wrapper struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, errInvalidBody
		}
		raw = wrapper.Items
	}
	if isEmptyJSON(raw) {
		return nil, errEmptyItems
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errItemsNotArray
	}
	if len(items) == 0 {
		return nil, errEmptyItems
	}
	return items, nil
}
