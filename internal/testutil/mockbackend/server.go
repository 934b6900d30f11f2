// Package mockbackend provides a recording fake of the editorial backend for tests.
package mockbackend

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Call is one request received by the fake backend.
type Call struct {
	Method   string      `json:"method"`
	Path     string      `json:"path"`
	RawQuery string      `json:"rawQuery,omitempty"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"-"`
}

// Response is a canned reply for one method and path.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        string `json:"body"`
}

// Server is a fake editorial backend that records every call it receives.
// Unstubbed routes answer 200 {"ok":true}.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []Call
	stubs  map[string]Response
	broken bool
}

// New starts a fake backend on a loopback test listener.
func New() *Server {
	s := NewStandalone()
	s.Server = httptest.NewServer(s.Handler())
	return s
}

// NewStandalone creates a fake backend without starting a listener.
// Serve Handler on a listener of your choice.
func NewStandalone() *Server {
	return &Server{stubs: make(map[string]Response)}
}

// Handler returns the fake backend handler, including the /_mock control routes:
//
//	POST   /_mock/stubs  {"method","path","status","contentType","body"}
//	GET    /_mock/calls
//	DELETE /_mock/reset
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/_mock/stubs", s.handleAddStub)
	r.Get("/_mock/calls", s.handleCalls)
	r.Delete("/_mock/reset", s.handleReset)
	r.NotFound(s.serve)
	r.MethodNotAllowed(s.serve)
	return r
}

func stubKey(method, path string) string {
	return method + " " + path
}

// Stub registers a JSON response for method and path.
func (s *Server) Stub(method, path string, status int, body string) {
	s.StubRaw(method, path, status, "application/json", body)
}

// StubRaw registers a response with an explicit content type.
func (s *Server) StubRaw(method, path string, status int, contentType, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[stubKey(method, path)] = Response{Status: status, ContentType: contentType, Body: body}
}

// Break makes every following request fail at the connection level.
func (s *Server) Break() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = true
}

// Calls returns a copy of the recorded calls in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// LastCall returns the most recent call, if any.
func (s *Server) LastCall() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// Reset clears recorded calls, stubs and injected failures.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.stubs = make(map[string]Response)
	s.broken = false
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     bytes.Clone(body),
	})
	resp, ok := s.stubs[stubKey(r.Method, r.URL.Path)]
	broken := s.broken
	s.mu.Unlock()

	if broken {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijacking not supported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			//nolint:errcheck
			conn.Close()
		}
		return
	}

	if !ok {
		resp = Response{Status: http.StatusOK, ContentType: "application/json", Body: `{"ok":true}`}
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.Status)
	//nolint:errcheck
	io.WriteString(w, resp.Body)
}
