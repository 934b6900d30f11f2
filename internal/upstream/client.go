package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request describes one outbound call to the backend.
type Request struct {
	Method   string
	Path     string // resource path appended to the base URL, e.g. "/internal/news-inbox"
	RawQuery string
	Header   http.Header
	Body     io.Reader
}

// Response is a successful (2xx) backend response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is an HTTP client for the editorial backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a new backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL builds the absolute backend URL for a path and raw query.
func (c *Client) URL(path, rawQuery string) string {
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// Do issues a single uncached round-trip to the backend.
//
// A transport failure is returned wrapped in ErrUnreachable. A non-2xx status is
// returned as *BackendError carrying the truncated body.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.URL(req.Path, req.RawQuery), req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to build backend request: %w", err)
	}

	for k, v := range req.Header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newBackendError(resp.StatusCode, body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
