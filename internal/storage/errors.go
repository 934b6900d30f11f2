package storage

import "errors"

var (
	// ErrInvalidEvent is returned when an audit event is missing its kind.
	ErrInvalidEvent = errors.New("audit event kind is required")
)
