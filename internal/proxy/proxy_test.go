package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/editor-gateway/internal/session"
	"github.com/sipico/editor-gateway/internal/storage"
	"github.com/sipico/editor-gateway/internal/testutil/mockbackend"
	"github.com/sipico/editor-gateway/internal/upstream"
	"github.com/sipico/editor-gateway/internal/urlnorm"
)

const testIngestKey = "test-ingest-key"

type recordingAuditor struct {
	mu     sync.Mutex
	events []storage.Event
}

func (a *recordingAuditor) RecordEvent(ctx context.Context, e *storage.Event) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *e)
	return int64(len(a.events)), nil
}

func (a *recordingAuditor) recorded() []storage.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]storage.Event(nil), a.events...)
}

type testProxy struct {
	backend *mockbackend.Server
	audit   *recordingAuditor
	router  http.Handler
}

func newTestProxy(t *testing.T) *testProxy {
	t.Helper()
	backend := mockbackend.New()
	t.Cleanup(backend.Close)

	audit := &recordingAuditor{}
	h := NewHandler(
		upstream.NewClient(backend.URL),
		urlnorm.NewBuilder("https://cdn.example", ""),
		testIngestKey,
		audit,
		nil,
	)
	return &testProxy{backend: backend, audit: audit, router: NewRouter(h)}
}

func (p *testProxy) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: session.AuthenticatedValue})
	w := httptest.NewRecorder()
	p.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestNewsAction_Queue(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)

	w := p.do(http.MethodPatch, "/api/news-inbox", `{"action":"queue","id":42}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	call, ok := p.backend.LastCall()
	require.True(t, ok)
	assert.Equal(t, http.MethodPatch, call.Method)
	assert.Equal(t, "/internal/news-inbox/42", call.Path)
	assert.JSONEq(t, `{"action":"queue"}`, string(call.Body))
	assert.Equal(t, "Bearer 1", call.Header.Get("Authorization"))
	assert.Equal(t, testIngestKey, call.Header.Get(upstream.IngestKeyHeader))
	assert.Equal(t, "application/json", call.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", call.Header.Get("Cache-Control"))

	events := p.audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, storage.KindInboxAction, events[0].Kind)
	assert.Equal(t, "news-inbox/42", events[0].Subject)
	assert.Equal(t, "queue", events[0].Detail)
	assert.Equal(t, "ok", events[0].Outcome)
}

func TestNewsAction_StringID(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)

	w := p.do(http.MethodPatch, "/api/news-inbox", `{"action":"processed","id":"17"}`)

	require.Equal(t, http.StatusOK, w.Code)
	call, _ := p.backend.LastCall()
	assert.Equal(t, "/internal/news-inbox/17", call.Path)
}

func TestNewsAction_BackendError(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.StubRaw(http.MethodPatch, "/internal/news-inbox/42", http.StatusInternalServerError, "text/plain", "database exploded")

	w := p.do(http.MethodPatch, "/api/news-inbox", `{"action":"queue","id":42}`)

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusInternalServerError, env.StatusCode)
	assert.Equal(t, "database exploded", env.Backend)
	assert.NotEmpty(t, env.Message)

	events := p.audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "backend_error", events[0].Outcome)
}

func TestNewsAction_BackendBodyTruncated(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.Stub(http.MethodPatch, "/internal/news-inbox/1", http.StatusBadRequest, strings.Repeat("x", 3000))

	w := p.do(http.MethodPatch, "/api/news-inbox", `{"action":"discard","id":1}`)

	require.Equal(t, http.StatusBadGateway, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusBadRequest, env.StatusCode)
	assert.Len(t, env.Backend, upstream.MaxErrorBodyBytes)
}

func TestNewsAction_BackendUnreachable(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.Break()

	w := p.do(http.MethodPatch, "/api/news-inbox", `{"action":"queue","id":42}`)

	require.Equal(t, http.StatusBadGateway, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusBadGateway, env.StatusCode)
}

func TestNewsAction_ValidationFailsWithoutBackendCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"unknown action", `{"action":"delete","id":42}`},
		{"empty action", `{"action":"","id":42}`},
		{"missing action", `{"id":42}`},
		{"zero id", `{"action":"queue","id":0}`},
		{"negative id", `{"action":"queue","id":-3}`},
		{"non-numeric id", `{"action":"queue","id":"abc"}`},
		{"fractional id", `{"action":"queue","id":4.5}`},
		{"boolean id", `{"action":"queue","id":true}`},
		{"missing id", `{"action":"discard"}`},
		{"null id", `{"action":"discard","id":null}`},
		{"batch without payload", `{"action":"news-batch"}`},
		{"batch with null payload", `{"action":"news-batch","payload":null}`},
		{"malformed json", `{"action":`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProxy(t)

			w := p.do(http.MethodPatch, "/api/news-inbox", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, float64(http.StatusBadRequest), resp["statusCode"])
			assert.NotEmpty(t, resp["message"])
			assert.Empty(t, p.backend.Calls(), "validation failures must not reach the backend")
			assert.Empty(t, p.audit.recorded())
		})
	}
}

func TestNewsAction_Batch(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.Stub(http.MethodPost, "/internal/news-inbox/batch", http.StatusCreated, `{"accepted":2}`)

	w := p.do(http.MethodPatch, "/api/news-inbox", `{"action":"news-batch","payload":{"items":[{"title":"a"},{"title":"b"}]}}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"accepted":2}`, w.Body.String())

	call, _ := p.backend.LastCall()
	assert.Equal(t, http.MethodPost, call.Method)
	assert.JSONEq(t, `{"items":[{"title":"a"},{"title":"b"}]}`, string(call.Body))
}

func TestListNews(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.Stub(http.MethodGet, "/internal/news-inbox", http.StatusOK, `{"items":[{"id":1}],"total":1}`)

	w := p.do(http.MethodGet, "/api/news-inbox?status=new&topic=tech&page=2&limit=20&q=go&debug=1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[{"id":1}],"total":1}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	call, _ := p.backend.LastCall()
	assert.Equal(t, http.MethodGet, call.Method)
	assert.Equal(t, "status=new&topic=tech&page=2&limit=20&q=go&debug=1", call.RawQuery)
	assert.Empty(t, call.Header.Get("Content-Type"))
	assert.Equal(t, testIngestKey, call.Header.Get(upstream.IngestKeyHeader))
}

func TestListNews_InvalidPaging(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"page=0", "page=-1", "limit=abc", "limit=0"} {
		t.Run(q, func(t *testing.T) {
			t.Parallel()
			p := newTestProxy(t)

			w := p.do(http.MethodGet, "/api/news-inbox?"+q, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, p.backend.Calls())
		})
	}
}

func TestListNews_InvalidBackendJSON(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.StubRaw(http.MethodGet, "/internal/news-inbox", http.StatusOK, "text/html", "<html>oops</html>")

	w := p.do(http.MethodGet, "/api/news-inbox", "")

	require.Equal(t, http.StatusBadGateway, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusBadGateway, env.StatusCode)
	assert.Equal(t, "<html>oops</html>", env.Backend)
}

func TestOfficialInbox(t *testing.T) {
	t.Parallel()

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)

		w := p.do(http.MethodGet, "/api/news-official-inbox?status=pending", "")

		require.Equal(t, http.StatusOK, w.Code)
		call, _ := p.backend.LastCall()
		assert.Equal(t, "/internal/official-social-inbox", call.Path)
		assert.Equal(t, "status=pending", call.RawQuery)
	})

	t.Run("action", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)

		w := p.do(http.MethodPatch, "/api/news-official-inbox", `{"action":"discard","id":7}`)

		require.Equal(t, http.StatusOK, w.Code)
		call, _ := p.backend.LastCall()
		assert.Equal(t, http.MethodPatch, call.Method)
		assert.Equal(t, "/internal/official-social-inbox/7", call.Path)
		assert.JSONEq(t, `{"action":"discard"}`, string(call.Body))

		events := p.audit.recorded()
		require.Len(t, events, 1)
		assert.Equal(t, "official-inbox/7", events[0].Subject)
	})

	t.Run("batch action rejected", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)

		w := p.do(http.MethodPatch, "/api/news-official-inbox", `{"action":"news-batch","payload":[1]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, p.backend.Calls())
	})
}

func TestSubmitOfficial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantItems  string
	}{
		{"wrapped items", `{"items":[{"url":"https://x.example/1"}]}`, http.StatusOK, `{"items":[{"url":"https://x.example/1"}]}`},
		{"bare array", `[{"url":"a"},{"url":"b"}]`, http.StatusOK, `{"items":[{"url":"a"},{"url":"b"}]}`},
		{"empty wrapped", `{"items":[]}`, http.StatusBadRequest, ""},
		{"empty array", `[]`, http.StatusBadRequest, ""},
		{"missing items", `{}`, http.StatusBadRequest, ""},
		{"items not array", `{"items":"nope"}`, http.StatusBadRequest, ""},
		{"malformed", `[{`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProxy(t)

			w := p.do(http.MethodPost, "/api/news-official-inbox", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantItems == "" {
				assert.Empty(t, p.backend.Calls())
				return
			}
			call, _ := p.backend.LastCall()
			assert.Equal(t, http.MethodPost, call.Method)
			assert.Equal(t, "/internal/official-social-inbox", call.Path)
			assert.JSONEq(t, tt.wantItems, string(call.Body))
		})
	}
}

func TestXPosts_Passthrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		method    string
		target    string
		body      string
		wantPath  string
		wantQuery string
	}{
		{"root listing", http.MethodGet, "/api/internal/x-posts?cursor=abc", "", "/internal/x-inbox", "cursor=abc"},
		{"root with slash", http.MethodGet, "/api/internal/x-posts/", "", "/internal/x-inbox", ""},
		{"nested get", http.MethodGet, "/api/internal/x-posts/items/99", "", "/internal/x-inbox/items/99", ""},
		{"post body", http.MethodPost, "/api/internal/x-posts/ingest", `{"urls":["u"]}`, "/internal/x-inbox/ingest", ""},
		{"patch body", http.MethodPatch, "/api/internal/x-posts/items/5?force=1", `{"status":"done"}`, "/internal/x-inbox/items/5", "force=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProxy(t)
			p.backend.StubRaw(tt.method, tt.wantPath, http.StatusAccepted, "text/plain; charset=utf-8", "raw backend text")

			w := p.do(tt.method, tt.target, tt.body)

			require.Equal(t, http.StatusAccepted, w.Code)
			assert.Equal(t, "raw backend text", w.Body.String())
			assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

			call, ok := p.backend.LastCall()
			require.True(t, ok)
			assert.Equal(t, tt.method, call.Method)
			assert.Equal(t, tt.wantPath, call.Path)
			assert.Equal(t, tt.wantQuery, call.RawQuery)
			assert.Equal(t, tt.body, string(call.Body))
			assert.Equal(t, testIngestKey, call.Header.Get(upstream.IngestKeyHeader))
		})
	}
}

func TestXPosts_RejectsDotSegments(t *testing.T) {
	t.Parallel()

	for _, target := range []string{
		"/api/internal/x-posts/items/../secrets",
		"/api/internal/x-posts/./items",
		"/api/internal/x-posts/..%2f..%2fnews-inbox",
		"/api/internal/x-posts/%2e%2e/%2e%2e/news-inbox",
		"/api/internal/x-posts/items/%2E%2E",
		"/api/internal/x-posts/items%2fsecrets",
		"/api/internal/x-posts/..%5cnews-inbox",
	} {
		t.Run(target, func(t *testing.T) {
			t.Parallel()
			p := newTestProxy(t)

			w := p.do(http.MethodGet, target, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, p.backend.Calls())
		})
	}
}

func TestXPosts_EscapedSegmentForwarded(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)

	w := p.do(http.MethodGet, "/api/internal/x-posts/tags/go%20lang", "")

	require.Equal(t, http.StatusOK, w.Code)
	call, ok := p.backend.LastCall()
	require.True(t, ok)
	assert.Equal(t, "/internal/x-inbox/tags/go lang", call.Path)
}

func TestXPosts_BackendError(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.StubRaw(http.MethodGet, "/internal/x-inbox/items", http.StatusNotFound, "text/plain", "no such thing")

	w := p.do(http.MethodGet, "/api/internal/x-posts/items", "")

	require.Equal(t, http.StatusBadGateway, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusNotFound, env.StatusCode)
	assert.Equal(t, "no such thing", env.Backend)
}

func TestXPosts_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)

	w := p.do(http.MethodDelete, "/api/internal/x-posts/items/1", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Empty(t, p.backend.Calls())
}

func TestPreprocess_RewritesURLs(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.Stub(http.MethodPost, "/internal/ai-image/preprocess", http.StatusOK,
		`{"cleanUrl":"/uploads/x-clean.png","skipped":false,"reason":null,"debug":{"steps":2}}`)

	w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"rawUrl":"https://cdn.example/uploads/x.png","hint":"crop"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t,
		`{"cleanUrl":"https://cdn.example/uploads/x-clean.png","skipped":false,"reason":null,"debug":{"steps":2}}`,
		w.Body.String())

	call, _ := p.backend.LastCall()
	assert.JSONEq(t, `{"imageUrl":"/uploads/x.png","hint":"crop"}`, string(call.Body))
}

func TestPreprocess_ImageURLAndExternalURL(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)
	p.backend.Stub(http.MethodPost, "/internal/ai-image/preprocess", http.StatusOK,
		`{"cleanUrl":"https://images.example/clean.png","skipped":true,"reason":"already clean"}`)

	w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"imageUrl":"https://images.example/raw.png"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://images.example/clean.png", resp["cleanUrl"])
	assert.Equal(t, true, resp["skipped"])
	assert.Equal(t, "already clean", resp["reason"])

	call, _ := p.backend.LastCall()
	assert.JSONEq(t, `{"imageUrl":"https://images.example/raw.png"}`, string(call.Body))
}

func TestPreprocess_Failures(t *testing.T) {
	t.Parallel()

	t.Run("missing url", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)

		w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"hint":"x"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, p.backend.Calls())
	})

	t.Run("backend omits cleanUrl", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)
		p.backend.Stub(http.MethodPost, "/internal/ai-image/preprocess", http.StatusOK, `{"skipped":true}`)

		w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"rawUrl":"/uploads/a.png"}`)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(http.StatusInternalServerError), resp["statusCode"])
	})

	for name, tc := range map[string]struct {
		status int
		body   string
	}{
		"empty body":          {http.StatusNoContent, ""},
		"null cleanUrl":       {http.StatusOK, `{"cleanUrl":null}`},
		"empty cleanUrl":      {http.StatusOK, `{"cleanUrl":"  "}`},
		"non-string cleanUrl": {http.StatusOK, `{"cleanUrl":42}`},
		"object cleanUrl":     {http.StatusCreated, `{"cleanUrl":{"path":"/uploads/a.png"}}`},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := newTestProxy(t)
			p.backend.Stub(http.MethodPost, "/internal/ai-image/preprocess", tc.status, tc.body)

			w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"rawUrl":"/uploads/a.png"}`)

			require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "cleanUrl")
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)
		p.backend.StubRaw(http.MethodPost, "/internal/ai-image/preprocess", http.StatusOK, "text/html", "<html>")

		w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"rawUrl":"/uploads/a.png"}`)

		require.Equal(t, http.StatusBadGateway, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, http.StatusBadGateway, env.StatusCode)
		assert.Equal(t, "<html>", env.Backend)
	})

	t.Run("backend failure", func(t *testing.T) {
		t.Parallel()
		p := newTestProxy(t)
		p.backend.Stub(http.MethodPost, "/internal/ai-image/preprocess", http.StatusServiceUnavailable, `{"error":"busy"}`)

		w := p.do(http.MethodPost, "/api/internal/ai-image/preprocess", `{"rawUrl":"/uploads/a.png"}`)

		require.Equal(t, http.StatusBadGateway, w.Code)
		env := decodeEnvelope(t, w)
		assert.Equal(t, http.StatusServiceUnavailable, env.StatusCode)
		assert.Equal(t, `{"error":"busy"}`, env.Backend)
	})
}

func TestRequestBodyTooLarge(t *testing.T) {
	t.Parallel()
	p := newTestProxy(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/news-inbox", strings.NewReader(`{"action":"queue","id":42,"pad":"`+strings.Repeat("a", 100)+`"}`))
	w := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(w, req.Body, 16)
	p.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, p.backend.Calls())
}

func TestParseID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{`42`, 42, false},
		{`"42"`, 42, false},
		{`" 7 "`, 7, false},
		{`0`, 0, true},
		{`-1`, 0, true},
		{`"x"`, 0, true},
		{`1.5`, 0, true},
		{`null`, 0, true},
		{``, 0, true},
	}

	for _, tt := range tests {
		got, err := parseID(json.RawMessage(tt.raw))
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
