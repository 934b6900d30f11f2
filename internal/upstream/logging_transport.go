package upstream

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sipico/editor-gateway/internal/logging"
)

// LoggingTransport wraps an http.RoundTripper and logs every backend round-trip at debug level.
// Credentials in headers (Authorization, x-ingest-key, Cookie) are masked.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper interface
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	debug := t.Logger.Enabled(ctx, slog.LevelDebug)
	start := time.Now()

	if debug {
		var reqBody []byte
		if req.Body != nil {
			var err error
			reqBody, err = io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			// Restore body for transport
			req.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		t.Logger.Debug("backend request",
			"method", req.Method,
			"url", req.URL.String(),
			"headers", maskHeaders(req.Header),
			"body", logging.Truncate(string(reqBody), logBodyLimit),
		)
	}

	resp, err := t.transport().RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.Logger.Warn("backend request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	if !debug {
		return resp, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close() //nolint:errcheck
	if err != nil {
		return nil, err
	}
	// Restore body for caller
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	t.Logger.Debug("backend response",
		"method", req.Method,
		"url", req.URL.String(),
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"headers", maskHeaders(resp.Header),
		"body", logging.Truncate(string(respBody), logBodyLimit),
	)

	return resp, nil
}

// transport returns the underlying transport or DefaultTransport if nil
func (t *LoggingTransport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

const logBodyLimit = 4096

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = logging.MaskHeader(k, strings.Join(v, ", "))
	}
	return out
}
