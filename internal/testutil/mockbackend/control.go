package mockbackend

import (
	"encoding/json"
	"net/http"
	"strings"
)

// StubRequest is the body for POST /_mock/stubs
type StubRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Response
}

// handleAddStub handles POST /_mock/stubs
func (s *Server) handleAddStub(w http.ResponseWriter, r *http.Request) {
	var req StubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Method == "" || !strings.HasPrefix(req.Path, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "method and path are required"})
		return
	}
	if req.Status == 0 {
		req.Status = http.StatusOK
	}

	s.StubRaw(strings.ToUpper(req.Method), req.Path, req.Status, req.ContentType, req.Body)
	w.WriteHeader(http.StatusNoContent)
}

// handleCalls handles GET /_mock/calls
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	type callView struct {
		Call
		Body string `json:"body,omitempty"`
	}
	calls := s.Calls()
	out := make([]callView, 0, len(calls))
	for _, c := range calls {
		out = append(out, callView{Call: c, Body: string(c.Body)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": out})
}

// handleReset handles DELETE /_mock/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(data)
}
