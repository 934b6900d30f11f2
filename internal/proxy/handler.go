// Package proxy forwards editorial API calls from the browser to the backend.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sipico/editor-gateway/internal/metrics"
	"github.com/sipico/editor-gateway/internal/middleware"
	"github.com/sipico/editor-gateway/internal/storage"
	"github.com/sipico/editor-gateway/internal/upstream"
	"github.com/sipico/editor-gateway/internal/urlnorm"
)

// Backend performs one round-trip to the editorial backend.
// *upstream.Client satisfies it.
type Backend interface {
	Do(ctx context.Context, req *upstream.Request) (*upstream.Response, error)
}

// Auditor records inbox actions. It may be nil.
type Auditor interface {
	RecordEvent(ctx context.Context, e *storage.Event) (int64, error)
}

// Handler handles proxied editorial API requests.
type Handler struct {
	backend   Backend
	urls      *urlnorm.Builder
	ingestKey string
	audit     Auditor
	logger    *slog.Logger
}

// NewHandler creates a new proxy handler.
// If logger is nil, slog.Default() will be used.
func NewHandler(backend Backend, urls *urlnorm.Builder, ingestKey string, audit Auditor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		backend:   backend,
		urls:      urls,
		ingestKey: ingestKey,
		audit:     audit,
		logger:    logger,
	}
}

// errorEnvelope is the body of every failed backend call.
type errorEnvelope struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Backend    string `json:"backend"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log encoding errors but don't fail the response
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a locally produced {message, statusCode} error.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"message":    message,
		"statusCode": status,
	})
}

// writeEnvelope answers 502 with the backend status and body for diagnosis.
// A successful backend status is reported as 502 since the body was unusable.
func writeEnvelope(w http.ResponseWriter, message string, backendStatus int, backendBody string) {
	if backendStatus < http.StatusMultipleChoices {
		backendStatus = http.StatusBadGateway
	}
	writeJSON(w, http.StatusBadGateway, errorEnvelope{
		Message:    message,
		StatusCode: backendStatus,
		Backend:    backendBody,
	})
}

// handleBackendError maps a failed round-trip to the 502 envelope.
func (h *Handler) handleBackendError(w http.ResponseWriter, r *http.Request, route string, err error) {
	var backendErr *upstream.BackendError
	if errors.As(err, &backendErr) {
		h.logger.Warn("backend returned error",
			"route", route,
			"status", backendErr.StatusCode,
			"path", r.URL.Path,
		)
		writeEnvelope(w, "backend request failed", backendErr.StatusCode, backendErr.Body)
		return
	}

	h.logger.Error("backend unreachable", "route", route, "path", r.URL.Path, "error", err)
	writeEnvelope(w, "backend unreachable", http.StatusBadGateway, "")
}

// forward performs the round-trip and records it. On failure the error
// response has already been written and ok is false.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, route string, req *upstream.Request) (resp *upstream.Response, ok bool) {
	start := time.Now()
	resp, err := h.backend.Do(r.Context(), req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		outcome := "unreachable"
		var backendErr *upstream.BackendError
		if errors.As(err, &backendErr) {
			outcome = "backend_error"
		}
		metrics.RecordUpstream(route, outcome, elapsed)
		h.handleBackendError(w, r, route, err)
		return nil, false
	}

	metrics.RecordUpstream(route, "ok", elapsed)
	return resp, true
}

// relayJSON re-serializes a successful backend JSON body with the backend status.
func relayJSON(w http.ResponseWriter, resp *upstream.Response) {
	if len(resp.Body) == 0 {
		w.WriteHeader(resp.StatusCode)
		return
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		writeEnvelope(w, "backend returned invalid JSON", resp.StatusCode, truncate(resp.Body))
		return
	}
	writeJSON(w, resp.StatusCode, data)
}

// relayRaw copies a successful backend body and content type verbatim.
func relayRaw(w http.ResponseWriter, resp *upstream.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	//nolint:errcheck
	w.Write(resp.Body)
}

func truncate(body []byte) string {
	if len(body) > upstream.MaxErrorBodyBytes {
		body = body[:upstream.MaxErrorBodyBytes]
	}
	return string(body)
}

// readBody reads the whole inbound body. On failure the error response has
// already been written and ok is false.
func readBody(w http.ResponseWriter, r *http.Request) (body []byte, ok bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// recordAction audits an inbox action. Failures are logged only.
func (h *Handler) recordAction(r *http.Request, subject, action, outcome string) {
	if h.audit == nil {
		return
	}
	e := &storage.Event{
		Kind:       storage.KindInboxAction,
		Subject:    subject,
		Detail:     action,
		Outcome:    outcome,
		RemoteAddr: r.RemoteAddr,
		RequestID:  middleware.GetRequestID(r.Context()),
	}
	if _, err := h.audit.RecordEvent(r.Context(), e); err != nil {
		h.logger.Warn("failed to record audit event", "subject", subject, "error", err)
	}
}
