package admin

import (
	"context"
	"errors"
	"sync"

	"github.com/sipico/editor-gateway/internal/storage"
)

// mockStorage implements Storage for tests.
type mockStorage struct {
	mu      sync.Mutex
	events  []*storage.Event
	pingErr error
	listErr error
	recErr  error
}

func (m *mockStorage) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockStorage) RecordEvent(ctx context.Context, e *storage.Event) (int64, error) {
	if m.recErr != nil {
		return 0, m.recErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	e.ID = int64(len(m.events))
	return e.ID, nil
}

func (m *mockStorage) ListEvents(ctx context.Context, limit int) ([]*storage.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.Event, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStorage) recorded() []*storage.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.Event(nil), m.events...)
}

var errDatabaseDown = errors.New("database down")
