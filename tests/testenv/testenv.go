// Package testenv drives a running gateway and its mock backend for end-to-end tests.
//
// The gateway is reached at GATEWAY_URL (default http://localhost:8080) and the
// mock backend's control routes at MOCK_BACKEND_URL (default http://localhost:4000).
package testenv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sipico/editor-gateway/internal/testutil/mockbackend"
)

// TestEnv is a cookie-carrying client for the gateway plus control of the mock backend.
type TestEnv struct {
	GatewayURL string
	BackendURL string

	client *http.Client
}

// Setup creates a test environment from the environment variables and resets
// the mock backend. Cleanup resets it again.
func Setup(t *testing.T) *TestEnv {
	t.Helper()
	env := New(
		getEnv("GATEWAY_URL", "http://localhost:8080"),
		getEnv("MOCK_BACKEND_URL", "http://localhost:4000"),
	)
	env.ResetBackend(t)
	t.Cleanup(func() { env.ResetBackend(t) })
	return env
}

// New creates a test environment for explicit URLs.
func New(gatewayURL, backendURL string) *TestEnv {
	jar, _ := cookiejar.New(nil)
	return &TestEnv{
		GatewayURL: strings.TrimRight(gatewayURL, "/"),
		BackendURL: strings.TrimRight(backendURL, "/"),
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// WaitForGateway polls /health until it answers 200 or timeout elapses.
func WaitForGateway(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("gateway not ready after %v", timeout)
}

// Do sends a request to the gateway with the session cookie jar.
// A non-empty body is sent as JSON.
func (e *TestEnv) Do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.GatewayURL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// DoJSON sends a request and decodes the JSON response into out. It returns the status.
func (e *TestEnv) DoJSON(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	resp := e.Do(t, method, path, body)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("failed to decode %s %s response %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

// Login signs in with password and fails the test unless it succeeds.
func (e *TestEnv) Login(t *testing.T, password string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"password": password})
	if status := e.DoJSON(t, http.MethodPost, "/api/admin-login", string(body), nil); status != http.StatusOK {
		t.Fatalf("login failed with status %d", status)
	}
}

// Logout clears the session.
func (e *TestEnv) Logout(t *testing.T) {
	t.Helper()
	if status := e.DoJSON(t, http.MethodPost, "/admin/logout", "", nil); status != http.StatusOK {
		t.Fatalf("logout failed with status %d", status)
	}
}

// Stub registers a canned backend response.
func (e *TestEnv) Stub(t *testing.T, method, path string, status int, contentType, body string) {
	t.Helper()
	payload, _ := json.Marshal(mockbackend.StubRequest{
		Method: method,
		Path:   path,
		Response: mockbackend.Response{
			Status:      status,
			ContentType: contentType,
			Body:        body,
		},
	})
	resp, err := http.Post(e.BackendURL+"/_mock/stubs", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to stub backend: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stub rejected with status %d", resp.StatusCode)
	}
}

// BackendCall is a call recorded by the mock backend.
type BackendCall struct {
	Method   string      `json:"method"`
	Path     string      `json:"path"`
	RawQuery string      `json:"rawQuery"`
	Header   http.Header `json:"header"`
	Body     string      `json:"body"`
}

// BackendCalls returns the calls the mock backend has received since the last reset.
func (e *TestEnv) BackendCalls(t *testing.T) []BackendCall {
	t.Helper()
	resp, err := http.Get(e.BackendURL + "/_mock/calls")
	if err != nil {
		t.Fatalf("failed to fetch backend calls: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Calls []BackendCall `json:"calls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode backend calls: %v", err)
	}
	return out.Calls
}

// ResetBackend clears recorded calls and stubs.
func (e *TestEnv) ResetBackend(t *testing.T) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodDelete, e.BackendURL+"/_mock/reset", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to reset mock backend: %v", err)
	}
	resp.Body.Close()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
