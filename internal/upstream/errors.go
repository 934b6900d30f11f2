// Package upstream forwards editorial API calls to the backend.
package upstream

import (
	"errors"
	"fmt"
)

// MaxErrorBodyBytes bounds how much of a failed backend body is surfaced to callers.
const MaxErrorBodyBytes = 2000

// ErrUnreachable is returned when the backend could not be contacted at all.
var ErrUnreachable = errors.New("upstream: backend unreachable")

// BackendError represents a non-2xx response from the backend.
type BackendError struct {
	StatusCode int
	Body       string // raw backend body, truncated to MaxErrorBodyBytes
}

// Error implements the error interface for BackendError.
func (e *BackendError) Error() string {
	return fmt.Sprintf("upstream: backend returned %d", e.StatusCode)
}

func newBackendError(status int, body []byte) *BackendError {
	if len(body) > MaxErrorBodyBytes {
		body = body[:MaxErrorBodyBytes]
	}
	return &BackendError{StatusCode: status, Body: string(body)}
}
